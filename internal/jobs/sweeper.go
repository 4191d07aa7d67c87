// Package jobs runs background work. The sweeper publishes scheduled posts
// once their time has come.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/events"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/posts"
	"github.com/postmaster/postmaster-backend/internal/repository"
	"github.com/postmaster/postmaster-backend/internal/store"
	"github.com/postmaster/postmaster-backend/pkg/kv"
)

// ErrSweepInProgress means another sweep holds the owner's lease.
var ErrSweepInProgress = apperr.New(apperr.CodeConflict, "A sweep is already running for this user")

// Publisher publishes a post that is already claimed.
type Publisher interface {
	PublishClaimed(ctx context.Context, post *entities.Post, accountID, trigger string) *posts.Result
}

type SweeperConfig struct {
	Interval time.Duration // how often every owner is swept
	Delay    time.Duration // pause between two publishes
	LeaseTTL time.Duration // upper bound on one owner's sweep
}

// SweepResult counts what one sweep did with the owner's due posts.
type SweepResult struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type Sweeper struct {
	repo      *repository.Repository
	publisher Publisher
	leases    kv.Store
	notifier  events.Notifier
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	config    SweeperConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	scheduler gocron.Scheduler
}

func NewSweeper(repo *repository.Repository, publisher Publisher, leases kv.Store, notifier events.Notifier, m *metrics.Metrics, logger *zap.SugaredLogger, config SweeperConfig) *Sweeper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if notifier == nil {
		notifier = events.Discard
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = 10 * time.Minute
	}
	return &Sweeper{
		repo:      repo,
		publisher: publisher,
		leases:    leases,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		config:    config,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Start schedules SweepAll every Interval. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create sweep scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if err := s.SweepAll(ctx); err != nil {
				s.logger.Errorw("Scheduled sweep failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	s.logger.Infow("Sweeper started", "interval", s.config.Interval, "delay", s.config.Delay)
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// SweepAll sweeps every owner that has at least one due post. An owner whose
// lease is held elsewhere is skipped.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	owners, err := s.repo.Posts.DueOwners(ctx, s.now())
	if err != nil {
		s.recordRun(ctx, "error")
		return fmt.Errorf("list due owners: %w", err)
	}

	for _, owner := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := s.Sweep(ctx, owner)
		switch {
		case errors.Is(err, ErrSweepInProgress):
			s.logger.Debugw("Owner sweep already running", "user", owner)
		case err != nil:
			s.logger.Errorw("Owner sweep failed", "user", owner, "error", err)
		default:
			s.logger.Infow("Owner swept", "user", owner, "published", res.Published, "failed", res.Failed, "skipped", res.Skipped)
		}
	}
	return nil
}

// Sweep publishes the owner's due posts one at a time, oldest schedule first,
// pausing Delay between publishes. A failed post is recorded as failed and the
// sweep moves on.
func (s *Sweeper) Sweep(ctx context.Context, owner string) (SweepResult, error) {
	var res SweepResult

	release, err := s.acquire(ctx, owner)
	if err != nil {
		s.recordRun(ctx, "locked")
		return res, err
	}
	defer release()

	due, err := s.repo.Posts.ListDue(ctx, owner, s.now())
	if err != nil {
		s.recordRun(ctx, "error")
		return res, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to load scheduled posts")
	}

	pause := false
	for _, post := range due {
		if pause && s.config.Delay > 0 {
			if err := s.sleep(ctx, s.config.Delay); err != nil {
				break
			}
		}
		pause = false
		if ctx.Err() != nil {
			break
		}

		claimed, err := s.repo.Posts.Claim(ctx, owner, post.ID, entities.StatusScheduled)
		if err != nil || !claimed {
			if err != nil {
				s.logger.Warnw("Failed to claim scheduled post", "post", post.ID, "error", err)
			}
			res.Skipped++
			s.recordPost(ctx, "skipped")
			continue
		}

		pause = true
		post.Status = entities.StatusPublishing
		out := s.publisher.PublishClaimed(ctx, post, "", posts.TriggerSweep)
		if out.Success {
			res.Published++
			s.recordPost(ctx, "published")
		} else {
			res.Failed++
			s.recordPost(ctx, "failed")
		}
	}

	s.recordRun(ctx, "ok")
	if res.Published+res.Failed > 0 {
		level := events.LevelSuccess
		if res.Failed > 0 {
			level = events.LevelWarning
		}
		s.notifier.Notify(ctx, owner, events.Notification{
			Type:    events.TypeSweepCompleted,
			Level:   level,
			Title:   "Scheduled posts processed",
			Message: fmt.Sprintf("%d published, %d failed", res.Published, res.Failed),
		})
	}
	return res, nil
}

// acquire takes the owner's sweep lease. The release func only deletes the
// lease while it still holds this sweep's token.
func (s *Sweeper) acquire(ctx context.Context, owner string) (func(), error) {
	if s.leases == nil {
		return func() {}, nil
	}

	key := store.SweepLeaseKey(owner)
	token := []byte(uuid.NewString())
	ok, err := s.leases.SetNX(ctx, key, token, s.config.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		return nil, ErrSweepInProgress
	}
	return func() {
		if _, err := s.leases.CompareAndDelete(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warnw("Failed to release sweep lease", "user", owner, "error", err)
		}
	}, nil
}

func (s *Sweeper) recordRun(ctx context.Context, result string) {
	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, result)
	}
}

func (s *Sweeper) recordPost(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSweptPost(ctx, outcome)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
