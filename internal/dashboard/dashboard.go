// Package dashboard builds the per-user summary shown on the dashboard home
// and caches it briefly.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/repository"
	"github.com/postmaster/postmaster-backend/internal/store"
)

const (
	DefaultTTL     = 30 * time.Second
	recentPosts    = 5
	recentAnalytic = 5
	analyticsLimit = 10
)

// Cache is the slice of store.Cache the dashboard needs.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Stats struct {
	Total     int64 `json:"total"`
	Drafts    int64 `json:"drafts"`
	Scheduled int64 `json:"scheduled"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

type Metric struct {
	Value    float64 `json:"value"`
	Change   string  `json:"change"`
	Trending string  `json:"trending"`
}

// Metrics keeps the key names the dashboard UI reads. They carry total
// impressions, total engagement, total clicks and the average engagement
// rate, in that order.
type Metrics struct {
	TodaysPosts   Metric `json:"todaysPosts"`
	UpcomingPosts Metric `json:"upcomingPosts"`
	NewUsers      Metric `json:"newUsers"`
	ActiveUsers   Metric `json:"activeUsers"`
}

type PlatformStat struct {
	Accounts   int   `json:"accounts"`
	Posts      int64 `json:"posts"`
	Percentage int64 `json:"percentage"`
}

type PlatformStats struct {
	LinkedIn PlatformStat `json:"linkedin"`
}

type Summary struct {
	Stats            Stats                       `json:"stats"`
	Metrics          Metrics                     `json:"metrics"`
	RecentPosts      []*entities.Post            `json:"recentPosts"`
	Analytics        []*entities.PostAnalytics   `json:"analytics"`
	LinkedInAccounts []*entities.LinkedInAccount `json:"linkedinAccounts"`
	PlatformStats    PlatformStats               `json:"platformStats"`
	HasRealAnalytics bool                        `json:"hasRealAnalytics"`
}

type Service struct {
	repo   *repository.Repository
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.SugaredLogger
}

// NewService builds the dashboard service. A nil cache disables caching.
func NewService(repo *repository.Repository, cache Cache, ttl time.Duration, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Summary returns the user's dashboard, from cache when fresh.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	key := store.DashboardKey(userID)

	if s.cache != nil {
		var cached Summary
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			s.logger.Warnw("dashboard cache read failed", "user_id", userID, "error", err)
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		summary, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
				s.logger.Warnw("Failed to cache dashboard", "user_id", userID, "error", err)
			}
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

// Invalidate drops the cached summary after the user's data changed.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	key := store.DashboardKey(userID)
	s.group.Forget(key)
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warnw("dashboard invalidation failed", "user_id", userID, "error", err)
	}
}

func (s *Service) load(ctx context.Context, userID string) (*Summary, error) {
	var (
		counts    map[string]int64
		recent    []*entities.Post
		onLI      int64
		analytics []*entities.PostAnalytics
		accounts  []*entities.LinkedInAccount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.repo.Posts.StatusCounts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.repo.Posts.List(gctx, userID, nil, recentPosts)
		return err
	})
	g.Go(func() (err error) {
		onLI, err = s.repo.Posts.CountOnLinkedIn(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to fetch posts")
	}

	// analytics and accounts only degrade the summary when they fail
	var err error
	if analytics, err = s.repo.Analytics.Recent(ctx, userID, analyticsLimit); err != nil {
		s.logger.Warnw("analytics fetch failed", "user_id", userID, "error", err)
		analytics = nil
	}
	if accounts, err = s.repo.Accounts.ListActive(ctx, userID); err != nil {
		s.logger.Warnw("linkedin accounts fetch failed", "user_id", userID, "error", err)
		accounts = nil
	}

	return build(counts, recent, onLI, analytics, accounts), nil
}

func build(counts map[string]int64, recent []*entities.Post, onLinkedIn int64, analytics []*entities.PostAnalytics, accounts []*entities.LinkedInAccount) *Summary {
	total := counts["total"]
	summary := &Summary{
		Stats: Stats{
			Total:     total,
			Drafts:    counts[string(entities.StatusDraft)],
			Scheduled: counts[string(entities.StatusScheduled)],
			Published: counts[string(entities.StatusPublished)],
			Failed:    counts[string(entities.StatusFailed)],
		},
		Metrics:          engagementMetrics(analytics),
		RecentPosts:      nonNilPosts(recent),
		Analytics:        firstAnalytics(analytics, recentAnalytic),
		LinkedInAccounts: nonNilAccounts(accounts),
		HasRealAnalytics: len(analytics) > 0,
	}

	summary.PlatformStats.LinkedIn = PlatformStat{
		Accounts: len(accounts),
		Posts:    onLinkedIn,
	}
	if total > 0 {
		summary.PlatformStats.LinkedIn.Percentage = decimal.NewFromInt(onLinkedIn).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(total)).
			Round(0).
			IntPart()
	}
	return summary
}

func engagementMetrics(analytics []*entities.PostAnalytics) Metrics {
	var impressions, engagement, clicks int64
	rateSum := decimal.Zero
	for _, a := range analytics {
		impressions += a.Impressions
		engagement += a.Likes + a.Comments + a.Shares
		clicks += a.Clicks
		rateSum = rateSum.Add(decimal.NewFromFloat(a.EngagementRate))
	}

	avgRate := decimal.Zero
	if len(analytics) > 0 {
		avgRate = rateSum.Div(decimal.NewFromInt(int64(len(analytics)))).Round(2)
	}

	return Metrics{
		TodaysPosts:   flat(float64(impressions)),
		UpcomingPosts: flat(float64(engagement)),
		NewUsers:      flat(float64(clicks)),
		ActiveUsers:   flat(avgRate.InexactFloat64()),
	}
}

// flat is a metric with no trend history yet.
func flat(v float64) Metric {
	return Metric{Value: v, Change: "0%", Trending: "up"}
}

func firstAnalytics(all []*entities.PostAnalytics, n int) []*entities.PostAnalytics {
	if len(all) > n {
		all = all[:n]
	}
	if all == nil {
		return []*entities.PostAnalytics{}
	}
	return all
}

func nonNilPosts(p []*entities.Post) []*entities.Post {
	if p == nil {
		return []*entities.Post{}
	}
	return p
}

func nonNilAccounts(a []*entities.LinkedInAccount) []*entities.LinkedInAccount {
	if a == nil {
		return []*entities.LinkedInAccount{}
	}
	return a
}
