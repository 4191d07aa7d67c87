// Package posts covers post editing and the publish pipeline: claim the
// post, resolve the account, assemble the content, submit it to LinkedIn
// and record the outcome.
package posts

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/repository"
)

// Invalidator drops cached per-user views after a change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

type CreateInput struct {
	Title       string
	Content     string
	Images      []string
	Hashtags    []string
	Status      entities.PostStatus
	ScheduledAt *time.Time
	ArticleURL  *string
}

// UpdateInput holds the editable fields; nil leaves a field unchanged.
type UpdateInput struct {
	Title       *string
	Content     *string
	Images      []string
	Hashtags    []string
	Status      *entities.PostStatus
	ScheduledAt *time.Time
	ArticleURL  *string
}

// editable lists the statuses a user may change a post from.
var editable = []entities.PostStatus{entities.StatusDraft, entities.StatusScheduled, entities.StatusFailed}

type Service struct {
	repo       *repository.Repository
	invalidate Invalidator
	logger     *zap.SugaredLogger
}

func NewService(repo *repository.Repository, invalidate Invalidator, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: repo, invalidate: invalidate, logger: logger}
}

func (s *Service) List(ctx context.Context, owner string, status string) ([]*entities.Post, error) {
	var filter *entities.PostStatus
	if status != "" {
		st := entities.PostStatus(status)
		if !st.Valid() {
			return nil, apperr.New(apperr.CodeInvalidInput, "Invalid status filter")
		}
		filter = &st
	}
	posts, err := s.repo.Posts.List(ctx, owner, filter, 0)
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to fetch posts")
	}
	return posts, nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (*entities.Post, error) {
	post, err := s.repo.Posts.Get(ctx, owner, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to fetch post")
	}
	return post, nil
}

func (s *Service) Create(ctx context.Context, owner string, in CreateInput) (*entities.Post, error) {
	status := in.Status
	if status == "" {
		status = entities.StatusDraft
	}
	if err := checkSchedule(status, in.ScheduledAt); err != nil {
		return nil, err
	}

	post, err := s.repo.Posts.Create(ctx, &entities.Post{
		UserID:      owner,
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		Images:      in.Images,
		Hashtags:    NormalizeHashtags(in.Hashtags),
		Status:      status,
		ScheduledAt: in.ScheduledAt,
		ArticleURL:  emptyToNil(in.ArticleURL),
	})
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to create post")
	}
	s.logger.Infow("Post created", "user", owner, "post", post.ID, "status", post.Status)
	s.changed(ctx, owner)
	return post, nil
}

// Update edits a post that is not published and not being published.
func (s *Service) Update(ctx context.Context, owner, id string, in UpdateInput) (*entities.Post, error) {
	current, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := checkEditable(current.Status); err != nil {
		return nil, err
	}

	status := current.Status
	if in.Status != nil {
		status = *in.Status
		schedule := current.ScheduledAt
		if in.ScheduledAt != nil {
			schedule = in.ScheduledAt
		}
		if err := checkSchedule(status, schedule); err != nil {
			return nil, err
		}
	}

	patch := repository.PostPatch{
		Title:       in.Title,
		Content:     in.Content,
		Images:      in.Images,
		Status:      in.Status,
		ScheduledAt: in.ScheduledAt,
		ArticleURL:  in.ArticleURL,
	}
	if in.Hashtags != nil {
		patch.Hashtags = NormalizeHashtags(in.Hashtags)
	}
	if status == entities.StatusDraft && in.Status != nil && in.ScheduledAt == nil {
		patch.ClearSchedule = true
	}
	return s.apply(ctx, owner, id, patch)
}

// SetStatus moves a post between draft and scheduled.
func (s *Service) SetStatus(ctx context.Context, owner, id string, status entities.PostStatus, scheduledAt *time.Time) (*entities.Post, error) {
	current, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := checkEditable(current.Status); err != nil {
		return nil, err
	}
	schedule := current.ScheduledAt
	if scheduledAt != nil {
		schedule = scheduledAt
	}
	if err := checkSchedule(status, schedule); err != nil {
		return nil, err
	}
	return s.apply(ctx, owner, id, repository.PostPatch{Status: &status, ScheduledAt: scheduledAt})
}

func (s *Service) Delete(ctx context.Context, owner, id string) error {
	current, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if current.Status == entities.StatusPublishing {
		return ErrPublishInProgress
	}
	if err := s.repo.Posts.Delete(ctx, owner, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPostNotFound
		}
		return apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to delete post")
	}
	s.changed(ctx, owner)
	return nil
}

// Duplicate copies a post as a new draft titled "<title> (Copy)".
func (s *Service) Duplicate(ctx context.Context, owner, id string) (*entities.Post, error) {
	src, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, owner, CreateInput{
		Title:      src.Title + " (Copy)",
		Content:    src.Content,
		Images:     src.Images,
		Hashtags:   src.Hashtags,
		Status:     entities.StatusDraft,
		ArticleURL: src.ArticleURL,
	})
}

func (s *Service) apply(ctx context.Context, owner, id string, patch repository.PostPatch) (*entities.Post, error) {
	post, err := s.repo.Posts.Update(ctx, owner, id, patch, editable...)
	if errors.Is(err, repository.ErrNotFound) {
		// the post was deleted or claimed since it was read
		current, getErr := s.Get(ctx, owner, id)
		if getErr != nil {
			return nil, getErr
		}
		if err := checkEditable(current.Status); err != nil {
			return nil, err
		}
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to update post")
	}
	s.changed(ctx, owner)
	return post, nil
}

func (s *Service) changed(ctx context.Context, owner string) {
	if s.invalidate != nil {
		s.invalidate.Invalidate(ctx, owner)
	}
}

func checkEditable(status entities.PostStatus) error {
	switch status {
	case entities.StatusPublished:
		return ErrPublishedImmutable
	case entities.StatusPublishing:
		return ErrPublishInProgress
	}
	return nil
}

func checkSchedule(status entities.PostStatus, scheduledAt *time.Time) error {
	switch status {
	case entities.StatusDraft:
		return nil
	case entities.StatusScheduled:
		if scheduledAt == nil || scheduledAt.IsZero() {
			return ErrScheduleRequired
		}
		return nil
	}
	return ErrInvalidStatus
}

// NormalizeHashtags trims tags, drops a leading '#' and removes empties.
func NormalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimPrefix(strings.TrimSpace(tag), "#"); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
