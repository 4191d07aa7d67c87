package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/db"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/posts"
	"github.com/postmaster/postmaster-backend/internal/repository"
	"github.com/postmaster/postmaster-backend/internal/store"
	memkv "github.com/postmaster/postmaster-backend/pkg/kv/memory"
)

// fakePublisher records the claimed posts it is handed and settles them.
type fakePublisher struct {
	repo      *repository.Repository
	fail      map[string]bool
	onPublish func(title string)

	mu    sync.Mutex
	order []string
}

func (f *fakePublisher) PublishClaimed(ctx context.Context, post *entities.Post, _ string, trigger string) *posts.Result {
	f.mu.Lock()
	f.order = append(f.order, post.Title)
	f.mu.Unlock()
	if f.onPublish != nil {
		f.onPublish(post.Title)
	}

	if post.Status != entities.StatusPublishing || trigger != posts.TriggerSweep {
		return &posts.Result{Error: "unexpected call"}
	}
	if f.fail[post.Title] {
		_ = f.repo.Posts.MarkFailed(ctx, post.ID)
		return &posts.Result{Error: "boom"}
	}
	_ = f.repo.Posts.MarkPublished(ctx, post.ID, "urn:"+post.Title, "", time.Now())
	return &posts.Result{Success: true, LinkedInPostID: "urn:" + post.Title}
}

type sweepFixture struct {
	repo      *repository.Repository
	publisher *fakePublisher
	sweeper   *Sweeper
	leases    *memkv.Store
	sleeps    []time.Duration
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	ctx := context.Background()
	database := db.NewInMemoryDatabase()
	require.NoError(t, database.Connect(ctx))
	require.NoError(t, database.Migrate(ctx, db.AllSchemas()))
	repo := repository.NewRepository(database, nil)

	f := &sweepFixture{
		repo:      repo,
		publisher: &fakePublisher{repo: repo, fail: map[string]bool{}},
		leases:    memkv.New(time.Minute),
	}
	t.Cleanup(func() { _ = f.leases.Close() })

	f.sweeper = NewSweeper(repo, f.publisher, f.leases, nil, metrics.NewForTest(), nil, SweeperConfig{
		Interval: time.Minute,
		Delay:    2 * time.Second,
		LeaseTTL: time.Minute,
	})
	f.sweeper.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func (f *sweepFixture) scheduled(t *testing.T, owner, title string, at time.Time) *entities.Post {
	t.Helper()
	return f.withStatus(t, owner, title, entities.StatusScheduled, at)
}

func (f *sweepFixture) withStatus(t *testing.T, owner, title string, status entities.PostStatus, at time.Time) *entities.Post {
	t.Helper()
	p, err := f.repo.Posts.Create(context.Background(), &entities.Post{
		UserID: owner, Title: title, Status: status, ScheduledAt: &at,
	})
	require.NoError(t, err)
	return p
}

func TestSweepPublishesDuePostsInOrder(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	now := time.Now()

	f.scheduled(t, "u1", "second", now.Add(-time.Minute))
	f.scheduled(t, "u1", "first", now.Add(-time.Hour))
	f.scheduled(t, "u1", "third", now.Add(-time.Second))
	future := f.scheduled(t, "u1", "future", now.Add(time.Hour))
	f.scheduled(t, "u2", "other owner", now.Add(-time.Hour))
	f.publisher.fail["second"] = true

	res, err := f.sweeper.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Published: 2, Failed: 1}, res)
	assert.Equal(t, []string{"first", "second", "third"}, f.publisher.order)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.sleeps, "pause between publishes only")

	got, err := f.repo.Posts.Get(ctx, "u1", future.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScheduled, got.Status)

	counts, err := f.repo.Posts.StatusCounts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["published"])
	assert.Equal(t, int64(1), counts["failed"])

	ok, err := f.leases.Exists(ctx, store.SweepLeaseKey("u1"))
	require.NoError(t, err)
	assert.Zero(t, ok, "lease released")
}

func TestSweepIgnoresPastPostsThatAreNotScheduled(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	past := time.Now().Add(-time.Hour)

	others := map[entities.PostStatus]*entities.Post{}
	for _, status := range []entities.PostStatus{
		entities.StatusDraft, entities.StatusFailed, entities.StatusPublished, entities.StatusPublishing,
	} {
		others[status] = f.withStatus(t, "u1", string(status), status, past)
	}
	f.withStatus(t, "u2", "draft", entities.StatusDraft, past)

	res, err := f.sweeper.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Empty(t, f.publisher.order)

	require.NoError(t, f.sweeper.SweepAll(ctx))
	assert.Empty(t, f.publisher.order)

	for status, p := range others {
		got, err := f.repo.Posts.Get(ctx, "u1", p.ID)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}
}

func TestSweepSkipsPostsClaimedElsewhere(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	now := time.Now()

	f.scheduled(t, "u1", "free", now.Add(-time.Hour))
	taken := f.scheduled(t, "u1", "taken", now.Add(-time.Minute))

	// a manual publish claims the second post while the first is in flight
	f.publisher.onPublish = func(title string) {
		if title == "free" {
			_, _ = f.repo.Posts.Claim(ctx, "u1", taken.ID, entities.StatusScheduled)
		}
	}

	res, err := f.sweeper.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"free"}, f.publisher.order)
	assert.Equal(t, SweepResult{Published: 1, Skipped: 1}, res)
}

func TestSweepRespectsOwnerLease(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	f.scheduled(t, "u1", "p", time.Now().Add(-time.Minute))

	ok, err := f.leases.SetNX(ctx, store.SweepLeaseKey("u1"), []byte("someone-else"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.sweeper.Sweep(ctx, "u1")
	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.Empty(t, f.publisher.order)

	val, err := f.leases.Get(ctx, store.SweepLeaseKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("someone-else"), val, "foreign lease untouched")
}

func TestSweepAllCoversEveryDueOwner(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	now := time.Now()
	f.scheduled(t, "u1", "a", now.Add(-time.Minute))
	f.scheduled(t, "u2", "b", now.Add(-time.Minute))
	f.scheduled(t, "u3", "c", now.Add(time.Hour))

	require.NoError(t, f.sweeper.SweepAll(ctx))
	assert.ElementsMatch(t, []string{"a", "b"}, f.publisher.order)
}

func TestSweepStopsOnCancelledPause(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	now := time.Now()
	f.scheduled(t, "u1", "one", now.Add(-time.Hour))
	untouched := f.scheduled(t, "u1", "two", now.Add(-time.Minute))

	f.sweeper.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	res, err := f.sweeper.Sweep(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)

	got, err := f.repo.Posts.Get(ctx, "u1", untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScheduled, got.Status, "not claimed, picked up next sweep")
}

func TestStartAndStop(t *testing.T) {
	f := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.sweeper.Start(ctx))
	assert.NoError(t, f.sweeper.Stop())
}
