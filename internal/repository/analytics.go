package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

type AnalyticsStore struct {
	repo interfaces.Repository
}

// Recent returns the owner's latest analytics records by recorded_at.
func (s *AnalyticsStore) Recent(ctx context.Context, owner string, limit int) ([]*entities.PostAnalytics, error) {
	page, err := s.repo.FindMany(ctx, &interfaces.Query{
		Where:   interfaces.Where(interfaces.Eq("user_id", owner)),
		OrderBy: []interfaces.OrderBy{{Field: "recorded_at", Direction: "desc"}},
		Limit:   &limit,
	})
	if err != nil {
		return nil, err
	}
	records := make([]*entities.PostAnalytics, 0, len(page.Data))
	for _, rec := range page.Data {
		records = append(records, analyticsFromRecord(rec))
	}
	return records, nil
}

// Record stores one engagement snapshot.
func (s *AnalyticsStore) Record(ctx context.Context, a *entities.PostAnalytics) (*entities.PostAnalytics, error) {
	recordedAt := a.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	rec, err := s.repo.Create(ctx, map[string]interface{}{
		"post_id":         a.PostID,
		"user_id":         a.UserID,
		"impressions":     a.Impressions,
		"clicks":          a.Clicks,
		"likes":           a.Likes,
		"comments":        a.Comments,
		"shares":          a.Shares,
		"engagement_rate": a.EngagementRate,
		"recorded_at":     recordedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("record analytics: %w", err)
	}
	return analyticsFromRecord(rec), nil
}
