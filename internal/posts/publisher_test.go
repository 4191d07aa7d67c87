package posts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/repository"
)

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) SubmitTextPost(ctx context.Context, token, author, text string, visibility linkedin.Visibility) (*linkedin.PostResult, error) {
	args := m.Called(ctx, token, author, text, visibility)
	return result(args)
}

func (m *mockSubmitter) SubmitImagePost(ctx context.Context, token, author string, post linkedin.ImagePost) (*linkedin.PostResult, error) {
	args := m.Called(ctx, token, author, post)
	return result(args)
}

func (m *mockSubmitter) SubmitArticlePost(ctx context.Context, token, author string, post linkedin.ArticlePost) (*linkedin.PostResult, error) {
	args := m.Called(ctx, token, author, post)
	return result(args)
}

func result(args mock.Arguments) (*linkedin.PostResult, error) {
	if r := args.Get(0); r != nil {
		return r.(*linkedin.PostResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// storeResolver resolves against the repository like the accounts service.
type storeResolver struct {
	repo    *repository.Repository
	touched atomic.Int32
}

func (r *storeResolver) Resolve(ctx context.Context, owner, accountID string) (*entities.LinkedInAccount, error) {
	var (
		a   *entities.LinkedInAccount
		err error
	)
	if accountID != "" {
		a, err = r.repo.Accounts.GetActive(ctx, owner, accountID)
	} else {
		a, err = r.repo.Accounts.Primary(ctx, owner)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *storeResolver) Touch(ctx context.Context, accountID string, at time.Time) {
	r.touched.Add(1)
	_ = r.repo.Accounts.Touch(ctx, accountID, at)
}

type staticAssembler struct {
	err error
}

func (a staticAssembler) Assemble(_ context.Context, post *entities.Post) (*Content, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &Content{Text: ComposeText(post.Content, post.Hashtags), Title: post.Title}, nil
}

type pubFixture struct {
	repo      *repository.Repository
	resolver  *storeResolver
	submitter *mockSubmitter
	account   *entities.LinkedInAccount
}

// cancellableDatabase makes writes fail on a cancelled ctx the way the
// postgres backend does.
type cancellableDatabase struct {
	interfaces.Database
}

func (d cancellableDatabase) Repository(schema *interfaces.Schema) interfaces.Repository {
	return cancellableRepository{d.Database.Repository(schema)}
}

type cancellableRepository struct {
	interfaces.Repository
}

func (r cancellableRepository) Update(ctx context.Context, id interfaces.ID, data map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Repository.Update(ctx, id, data)
}

func (r cancellableRepository) UpdateWhere(ctx context.Context, where *interfaces.Filters, data map[string]interface{}) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.Repository.UpdateWhere(ctx, where, data)
}

func newPubFixture(t *testing.T) *pubFixture {
	t.Helper()
	return newPubFixtureOn(t, db.NewInMemoryDatabase())
}

func newPubFixtureOn(t *testing.T, database interfaces.Database) *pubFixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, database.Connect(ctx))
	require.NoError(t, database.Migrate(ctx, db.AllSchemas()))
	repo := repository.NewRepository(database, nil)

	account, err := repo.Accounts.Upsert(ctx, &entities.LinkedInAccount{
		UserID: "u1", LinkedInID: "sub-1", AccessToken: "tok", DisplayName: "Me",
	}, true)
	require.NoError(t, err)

	return &pubFixture{
		repo:      repo,
		resolver:  &storeResolver{repo: repo},
		submitter: &mockSubmitter{},
		account:   account,
	}
}

func (f *pubFixture) publisher(a ContentAssembler) *Publisher {
	return NewPublisher(f.repo, f.resolver, a, f.submitter, nil, WithMetrics(metrics.NewForTest()))
}

func (f *pubFixture) post(t *testing.T, status entities.PostStatus) *entities.Post {
	t.Helper()
	p := &entities.Post{UserID: "u1", Title: "T", Content: "body", Hashtags: []string{"go"}, Status: status}
	if status == entities.StatusScheduled {
		at := time.Now().Add(-time.Minute)
		p.ScheduledAt = &at
	}
	created, err := f.repo.Posts.Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

func TestPublishSuccess(t *testing.T) {
	ctx := context.Background()
	f := newPubFixture(t)
	post := f.post(t, entities.StatusDraft)

	f.submitter.On("SubmitTextPost", mock.Anything, "tok", "sub-1", "body\n\n#go", linkedin.VisibilityPublic).
		Return(&linkedin.PostResult{ID: "urn:li:share:1"}, nil).Once()

	res, err := f.publisher(staticAssembler{}).Publish(ctx, "u1", post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, &Result{Success: true, LinkedInPostID: "urn:li:share:1"}, res)

	stored, err := f.repo.Posts.Get(ctx, "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPublished, stored.Status)
	assert.Equal(t, "urn:li:share:1", *stored.LinkedInPostID)
	assert.Equal(t, f.account.ID, *stored.LinkedInAccountID)
	assert.NotNil(t, stored.PublishedAt)
	assert.Equal(t, int32(1), f.resolver.touched.Load())

	_, err = f.publisher(staticAssembler{}).Publish(ctx, "u1", post.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyPublished)
	f.submitter.AssertExpectations(t)
}

func TestPublishPreconditionsLeavePostUntouched(t *testing.T) {
	ctx := context.Background()
	f := newPubFixture(t)
	post := f.post(t, entities.StatusDraft)
	p := f.publisher(staticAssembler{})

	_, err := p.Publish(ctx, "u2", post.ID, "")
	assert.ErrorIs(t, err, ErrPostNotFound, "other owner's post")

	_, err = p.Publish(ctx, "u1", post.ID, "unknown-account")
	assert.Equal(t, apperr.CodeAccountNotConnected, apperr.CodeOf(err))
	assert.Equal(t, "LinkedIn not connected", apperr.MessageOf(err))

	stored, err := f.repo.Posts.Get(ctx, "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDraft, stored.Status)
	f.submitter.AssertNotCalled(t, "SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishProviderFailureMarksFailedAndAllowsRetry(t *testing.T) {
	ctx := context.Background()
	f := newPubFixture(t)
	post := f.post(t, entities.StatusDraft)
	p := f.publisher(staticAssembler{})

	f.submitter.On("SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &linkedin.ProviderError{Status: 422, Body: "duplicate"}).Once()

	res, err := p.Publish(ctx, "u1", post.ID, "")
	require.Error(t, err)
	assert.Equal(t, 500, apperr.HTTPStatus(err))
	assert.False(t, res.Success)
	assert.Equal(t, "LinkedIn API error: 422 - duplicate", res.Error)

	stored, err := f.repo.Posts.Get(ctx, "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, stored.Status)
	assert.Nil(t, stored.LinkedInPostID)

	f.submitter.On("SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&linkedin.PostResult{ID: "urn:li:share:2"}, nil).Once()
	res, err = p.Publish(ctx, "u1", post.ID, f.account.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestPublishAssetFailureSkipsSubmit(t *testing.T) {
	ctx := context.Background()
	f := newPubFixture(t)
	post := f.post(t, entities.StatusDraft)

	res, err := f.publisher(staticAssembler{err: &AssetFetchError{URL: "x", Status: 404}}).Publish(ctx, "u1", post.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAssetFetch, apperr.CodeOf(err))
	assert.False(t, res.Success)

	stored, err := f.repo.Posts.Get(ctx, "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, stored.Status)
	f.submitter.AssertNotCalled(t, "SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConcurrentPublishSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newPubFixture(t)
	post := f.post(t, entities.StatusScheduled)
	p := f.publisher(staticAssembler{})

	f.submitter.On("SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&linkedin.PostResult{ID: "urn:li:share:9"}, nil)

	const racers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Publish(ctx, "u1", post.ID, "")
			if err == nil && res.Success {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	f.submitter.AssertNumberOfCalls(t, "SubmitTextPost", 1)
}

func TestPublishOutcomeSurvivesCancelledRequest(t *testing.T) {
	f := newPubFixtureOn(t, cancellableDatabase{db.NewInMemoryDatabase()})
	p := f.publisher(staticAssembler{})

	t.Run("provider call cancelled", func(t *testing.T) {
		post := f.post(t, entities.StatusDraft)
		ctx, cancel := context.WithCancel(context.Background())
		f.submitter.On("SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(nil, context.Canceled).Once()

		res, err := p.Publish(ctx, "u1", post.ID, "")
		require.Error(t, err)
		assert.False(t, res.Success)

		stored, err := f.repo.Posts.Get(context.Background(), "u1", post.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusFailed, stored.Status)

		f.submitter.On("SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&linkedin.PostResult{ID: "urn:li:share:retry"}, nil).Once()
		res, err = p.Publish(context.Background(), "u1", post.ID, "")
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("cancelled after the share was accepted", func(t *testing.T) {
		post := f.post(t, entities.StatusDraft)
		ctx, cancel := context.WithCancel(context.Background())
		f.submitter.On("SubmitTextPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(&linkedin.PostResult{ID: "urn:li:share:late"}, nil).Once()

		res, err := p.Publish(ctx, "u1", post.ID, "")
		require.NoError(t, err)
		assert.True(t, res.Success)

		stored, err := f.repo.Posts.Get(context.Background(), "u1", post.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPublished, stored.Status)
		require.NotNil(t, stored.LinkedInPostID)
		assert.Equal(t, "urn:li:share:late", *stored.LinkedInPostID)
	})
}

func TestPublishClaimedWithoutAccountFails(t *testing.T) {
	ctx := context.Background()
	f := newPubFixture(t)
	post := f.post(t, entities.StatusScheduled)
	require.NoError(t, f.repo.Accounts.Deactivate(ctx, "u1", f.account.ID))

	ok, err := f.repo.Posts.Claim(ctx, "u1", post.ID, entities.StatusScheduled)
	require.NoError(t, err)
	require.True(t, ok)

	res := f.publisher(staticAssembler{}).PublishClaimed(ctx, post, "", TriggerSweep)
	assert.False(t, res.Success)
	assert.Equal(t, "LinkedIn not connected", res.Error)

	stored, err := f.repo.Posts.Get(ctx, "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, stored.Status)
}

func TestSubmitPicksShareKind(t *testing.T) {
	f := newPubFixture(t)
	p := f.publisher(staticAssembler{})
	ctx := context.Background()

	f.submitter.On("SubmitImagePost", mock.Anything, "tok", "sub-1", mock.MatchedBy(func(ip linkedin.ImagePost) bool {
		return ip.ContentType == "image/png" && ip.AltText == "alt"
	})).Return(&linkedin.PostResult{ID: "img"}, nil).Once()
	f.submitter.On("SubmitArticlePost", mock.Anything, "tok", "sub-1", mock.MatchedBy(func(ap linkedin.ArticlePost) bool {
		return ap.URL == "https://a" && ap.Title == "Title"
	})).Return(&linkedin.PostResult{ID: "art"}, nil).Once()

	res, err := p.submit(ctx, f.account, &Content{Text: "t", Image: []byte{1}, ContentType: "image/png", AltText: "alt"})
	require.NoError(t, err)
	assert.Equal(t, "img", res.ID)

	res, err = p.submit(ctx, f.account, &Content{Text: "t", ArticleURL: "https://a", Title: "Title"})
	require.NoError(t, err)
	assert.Equal(t, "art", res.ID)
	f.submitter.AssertExpectations(t)
}
