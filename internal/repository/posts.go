package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

type PostStore struct {
	repo   interfaces.Repository
	logger *zap.SugaredLogger
}

// PostPatch lists the user-editable fields of a post. Nil means unchanged.
type PostPatch struct {
	Title         *string
	Content       *string
	Images        []string
	Hashtags      []string
	Status        *entities.PostStatus
	ScheduledAt   *time.Time
	ClearSchedule bool
	ArticleURL    *string
}

func (p PostPatch) record() map[string]interface{} {
	data := map[string]interface{}{}
	if p.Title != nil {
		data["title"] = *p.Title
	}
	if p.Content != nil {
		data["content"] = *p.Content
	}
	if p.Images != nil {
		data["images"] = append([]string{}, p.Images...)
	}
	if p.Hashtags != nil {
		data["hashtags"] = append([]string{}, p.Hashtags...)
	}
	if p.Status != nil {
		data["status"] = string(*p.Status)
	}
	if p.ScheduledAt != nil {
		data["scheduled_at"] = p.ScheduledAt.UTC()
	}
	if p.ClearSchedule {
		data["scheduled_at"] = nil
	}
	if p.ArticleURL != nil {
		if *p.ArticleURL == "" {
			data["article_url"] = nil
		} else {
			data["article_url"] = *p.ArticleURL
		}
	}
	return data
}

func owned(owner, id string, extra ...interfaces.Filter) *interfaces.Filters {
	return interfaces.Where(append([]interfaces.Filter{
		interfaces.Eq("id", id),
		interfaces.Eq("user_id", owner),
	}, extra...)...)
}

func statusIn(statuses []entities.PostStatus) interfaces.Filter {
	values := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	return interfaces.Op("status", interfaces.FilterOperator{In: values})
}

// Get returns the owner's post, or ErrNotFound.
func (s *PostStore) Get(ctx context.Context, owner, id string) (*entities.Post, error) {
	rec, err := s.repo.FindOne(ctx, &interfaces.Query{Where: owned(owner, id)})
	if err != nil {
		return nil, err
	}
	return postFromRecord(rec), nil
}

// List returns the owner's posts newest first, optionally limited to one status.
func (s *PostStore) List(ctx context.Context, owner string, status *entities.PostStatus, limit int) ([]*entities.Post, error) {
	where := interfaces.Where(interfaces.Eq("user_id", owner))
	if status != nil {
		where.Conditions = append(where.Conditions, interfaces.Eq("status", string(*status)))
	}
	q := &interfaces.Query{
		Where:   where,
		OrderBy: []interfaces.OrderBy{{Field: "created_at", Direction: "desc"}},
	}
	if limit > 0 {
		q.Limit = &limit
	}
	return s.find(ctx, q)
}

// ListDue returns the owner's scheduled posts whose time has come, oldest
// schedule first.
func (s *PostStore) ListDue(ctx context.Context, owner string, now time.Time) ([]*entities.Post, error) {
	return s.find(ctx, &interfaces.Query{
		Where: interfaces.Where(
			interfaces.Eq("user_id", owner),
			interfaces.Eq("status", string(entities.StatusScheduled)),
			interfaces.Op("scheduled_at", interfaces.FilterOperator{Lte: now.UTC()}),
		),
		OrderBy: []interfaces.OrderBy{{Field: "scheduled_at", Direction: "asc"}},
	})
}

// DueOwners returns the distinct owners that have at least one due post.
func (s *PostStore) DueOwners(ctx context.Context, now time.Time) ([]string, error) {
	page, err := s.repo.FindMany(ctx, &interfaces.Query{
		Where: interfaces.Where(
			interfaces.Eq("status", string(entities.StatusScheduled)),
			interfaces.Op("scheduled_at", interfaces.FilterOperator{Lte: now.UTC()}),
		),
		Select:  []string{"user_id", "scheduled_at"},
		OrderBy: []interfaces.OrderBy{{Field: "scheduled_at", Direction: "asc"}},
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	owners := make([]string, 0)
	for _, rec := range page.Data {
		owner := str(rec["user_id"])
		if _, ok := seen[owner]; ok || owner == "" {
			continue
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	return owners, nil
}

// Create stores a new post for post.UserID.
func (s *PostStore) Create(ctx context.Context, post *entities.Post) (*entities.Post, error) {
	status := post.Status
	if status == "" {
		status = entities.StatusDraft
	}
	data := map[string]interface{}{
		"user_id":      post.UserID,
		"title":        post.Title,
		"content":      post.Content,
		"images":       nonNil(post.Images),
		"hashtags":     nonNil(post.Hashtags),
		"status":       string(status),
		"scheduled_at": nullableTime(post.ScheduledAt),
		"article_url":  nullableString(post.ArticleURL),
	}
	if post.EngagementData != nil {
		data["engagement_data"] = post.EngagementData
	}

	rec, err := s.repo.Create(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return postFromRecord(rec), nil
}

// Update applies patch to the owner's post if its status is one of from.
// ErrNotFound covers both a missing post and a status outside from.
func (s *PostStore) Update(ctx context.Context, owner, id string, patch PostPatch, from ...entities.PostStatus) (*entities.Post, error) {
	data := patch.record()
	if len(data) == 0 {
		return s.Get(ctx, owner, id)
	}

	var extra []interfaces.Filter
	if len(from) > 0 {
		extra = append(extra, statusIn(from))
	}
	n, err := s.repo.UpdateWhere(ctx, owned(owner, id, extra...), data)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, owner, id)
}

// Delete removes the owner's post.
func (s *PostStore) Delete(ctx context.Context, owner, id string) error {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, interfaces.StringID(id))
}

// Claim moves the owner's post from one of the given statuses to publishing.
// Exactly one concurrent caller wins; the others get false.
func (s *PostStore) Claim(ctx context.Context, owner, id string, from ...entities.PostStatus) (bool, error) {
	n, err := s.repo.UpdateWhere(ctx, owned(owner, id, statusIn(from)), map[string]interface{}{
		"status": string(entities.StatusPublishing),
	})
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}
	return n == 1, nil
}

// MarkPublished records a successful publish of a claimed post.
func (s *PostStore) MarkPublished(ctx context.Context, id, linkedinPostID, accountID string, at time.Time) error {
	var account interface{}
	if accountID != "" {
		account = accountID
	}
	return s.finish(ctx, id, map[string]interface{}{
		"status":              string(entities.StatusPublished),
		"linkedin_post_id":    linkedinPostID,
		"linkedin_account_id": account,
		"published_at":        at.UTC(),
	})
}

// MarkFailed records a failed publish of a claimed post.
func (s *PostStore) MarkFailed(ctx context.Context, id string) error {
	return s.finish(ctx, id, map[string]interface{}{
		"status": string(entities.StatusFailed),
	})
}

func (s *PostStore) finish(ctx context.Context, id string, data map[string]interface{}) error {
	n, err := s.repo.UpdateWhere(ctx, interfaces.Where(
		interfaces.Eq("id", id),
		interfaces.Eq("status", string(entities.StatusPublishing)),
	), data)
	if err != nil {
		return fmt.Errorf("record publish outcome: %w", err)
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

// StatusCounts returns the owner's post count per status plus the total
// under the "total" key.
func (s *PostStore) StatusCounts(ctx context.Context, owner string) (map[string]int64, error) {
	page, err := s.repo.FindMany(ctx, &interfaces.Query{
		Where:  interfaces.Where(interfaces.Eq("user_id", owner)),
		Select: []string{"status"},
	})
	if err != nil {
		return nil, err
	}
	counts := map[string]int64{"total": page.Total}
	for _, rec := range page.Data {
		counts[str(rec["status"])]++
	}
	return counts, nil
}

// CountOnLinkedIn counts the owner's posts that carry a provider post id.
func (s *PostStore) CountOnLinkedIn(ctx context.Context, owner string) (int64, error) {
	return s.repo.Count(ctx, &interfaces.Query{Where: interfaces.Where(
		interfaces.Eq("user_id", owner),
		interfaces.Op("linkedin_post_id", interfaces.FilterOperator{IsNotNull: true}),
	)})
}

func (s *PostStore) find(ctx context.Context, q *interfaces.Query) ([]*entities.Post, error) {
	page, err := s.repo.FindMany(ctx, q)
	if err != nil {
		return nil, err
	}
	posts := make([]*entities.Post, 0, len(page.Data))
	for _, rec := range page.Data {
		posts = append(posts, postFromRecord(rec))
	}
	return posts, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
