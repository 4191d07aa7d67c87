package posts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/repository"
)

type recordingInvalidator struct{ calls int }

func (r *recordingInvalidator) Invalidate(context.Context, string) { r.calls++ }

func newTestService(t *testing.T) (*Service, *repository.Repository, *recordingInvalidator) {
	t.Helper()
	ctx := context.Background()
	database := db.NewInMemoryDatabase()
	require.NoError(t, database.Connect(ctx))
	require.NoError(t, database.Migrate(ctx, db.AllSchemas()))
	repo := repository.NewRepository(database, nil)
	inval := &recordingInvalidator{}
	return NewService(repo, inval, nil), repo, inval
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()
	svc, _, inval := newTestService(t)

	post, err := svc.Create(ctx, "u1", CreateInput{Title: " Hello ", Content: "c", Hashtags: []string{"#go", " "}})
	require.NoError(t, err)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, entities.StatusDraft, post.Status)
	assert.Equal(t, []string{"go"}, post.Hashtags)
	assert.Equal(t, 1, inval.calls)

	_, err = svc.Create(ctx, "u1", CreateInput{Title: "s", Status: entities.StatusScheduled})
	assert.ErrorIs(t, err, ErrScheduleRequired)
	assert.Equal(t, 400, apperr.HTTPStatus(err))

	_, err = svc.Create(ctx, "u1", CreateInput{Title: "p", Status: entities.StatusPublished})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	when := time.Now().Add(time.Hour)
	scheduled, err := svc.Create(ctx, "u1", CreateInput{Title: "s", Status: entities.StatusScheduled, ScheduledAt: &when})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScheduled, scheduled.Status)

	list, err := svc.List(ctx, "u1", "scheduled")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scheduled.ID, list[0].ID)

	_, err = svc.List(ctx, "u1", "bogus")
	assert.Equal(t, 400, apperr.HTTPStatus(err))
}

func TestUpdatePost(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)

	post, err := svc.Create(ctx, "u1", CreateInput{Title: "t"})
	require.NoError(t, err)

	title := "new title"
	url := "https://example.com"
	updated, err := svc.Update(ctx, "u1", post.ID, UpdateInput{Title: &title, ArticleURL: &url, Hashtags: []string{"#a"}})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, url, *updated.ArticleURL)
	assert.Equal(t, []string{"a"}, updated.Hashtags)

	scheduled := entities.StatusScheduled
	_, err = svc.Update(ctx, "u1", post.ID, UpdateInput{Status: &scheduled})
	assert.ErrorIs(t, err, ErrScheduleRequired)

	_, err = svc.Update(ctx, "u2", post.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrPostNotFound)

	// a published post is frozen
	ok, err := repo.Posts.Claim(ctx, "u1", post.ID, entities.StatusDraft)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = svc.Update(ctx, "u1", post.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrPublishInProgress)

	require.NoError(t, repo.Posts.MarkFailed(ctx, post.ID))
	_, err = svc.Update(ctx, "u1", post.ID, UpdateInput{Title: &title})
	require.NoError(t, err, "failed posts stay editable")

	ok, err = repo.Posts.Claim(ctx, "u1", post.ID, entities.StatusFailed)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Posts.MarkPublished(ctx, post.ID, "urn", "", time.Now()))
	_, err = svc.Update(ctx, "u1", post.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrPublishedImmutable)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	post, err := svc.Create(ctx, "u1", CreateInput{Title: "t"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "u1", post.ID, entities.StatusScheduled, nil)
	assert.ErrorIs(t, err, ErrScheduleRequired)

	when := time.Now().Add(time.Hour)
	got, err := svc.SetStatus(ctx, "u1", post.ID, entities.StatusScheduled, &when)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScheduled, got.Status)

	got, err = svc.SetStatus(ctx, "u1", post.ID, entities.StatusDraft, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDraft, got.Status)

	_, err = svc.SetStatus(ctx, "u1", post.ID, entities.StatusPublished, nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDuplicateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	when := time.Now().Add(time.Hour)
	src, err := svc.Create(ctx, "u1", CreateInput{
		Title: "Launch", Content: "c", Images: []string{"https://img"}, Hashtags: []string{"go"},
		Status: entities.StatusScheduled, ScheduledAt: &when,
	})
	require.NoError(t, err)

	dup, err := svc.Duplicate(ctx, "u1", src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "Launch (Copy)", dup.Title)
	assert.Equal(t, entities.StatusDraft, dup.Status)
	assert.Nil(t, dup.ScheduledAt)
	assert.Equal(t, src.Images, dup.Images)
	assert.Equal(t, src.Hashtags, dup.Hashtags)

	require.NoError(t, svc.Delete(ctx, "u1", src.ID))
	_, err = svc.Get(ctx, "u1", src.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", src.ID), ErrPostNotFound)
}
