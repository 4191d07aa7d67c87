package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

// DemoFixtures is a coherent data set for one owner: two linked accounts,
// posts in every resting status and analytics for the published ones.
type DemoFixtures struct {
	Accounts  []map[string]interface{}
	Posts     []map[string]interface{}
	Analytics []map[string]interface{}
}

// NewDemoFixtures builds fixtures for ownerID relative to now. IDs are
// generated up front so the sets reference each other.
func NewDemoFixtures(ownerID string, now time.Time) DemoFixtures {
	now = now.UTC()
	primaryID := uuid.NewString()
	secondaryID := uuid.NewString()
	tag := ownerID
	if len(tag) > 8 {
		tag = tag[:8]
	}

	f := DemoFixtures{
		Accounts: []map[string]interface{}{
			{
				"id":                    primaryID,
				"user_id":               ownerID,
				"linkedin_id":           "demo-" + tag + "-a",
				"linkedin_access_token": "demo-token-a",
				"linkedin_expires_at":   now.Add(60 * 24 * time.Hour),
				"display_name":          "Demo Author",
				"is_primary":            true,
				"is_active":             true,
			},
			{
				"id":                    secondaryID,
				"user_id":               ownerID,
				"linkedin_id":           "demo-" + tag + "-b",
				"linkedin_access_token": "demo-token-b",
				"linkedin_expires_at":   now.Add(60 * 24 * time.Hour),
				"display_name":          "Demo Company Page",
				"is_primary":            false,
				"is_active":             true,
			},
		},
	}

	type postSeed struct {
		title    string
		status   entities.PostStatus
		offset   time.Duration
		hashtags []string
	}
	seeds := []postSeed{
		{"Lessons from shipping every week", entities.StatusPublished, -72 * time.Hour, []string{"Shipping", "Engineering"}},
		{"Why small teams win", entities.StatusPublished, -48 * time.Hour, []string{"Startups"}},
		{"Hiring your first engineer", entities.StatusScheduled, 24 * time.Hour, []string{"Hiring"}},
		{"Notes on remote onboarding", entities.StatusDraft, -2 * time.Hour, nil},
		{"What our outage taught us", entities.StatusFailed, -24 * time.Hour, []string{"Reliability"}},
	}

	for i, s := range seeds {
		postID := uuid.NewString()
		post := map[string]interface{}{
			"id":         postID,
			"user_id":    ownerID,
			"title":      s.title,
			"content":    fmt.Sprintf("%s. A short demo post body.", s.title),
			"images":     []string{},
			"hashtags":   append([]string{}, s.hashtags...),
			"status":     string(s.status),
			"created_at": now.Add(time.Duration(i-len(seeds)) * time.Hour * 24),
		}
		switch s.status {
		case entities.StatusScheduled:
			post["scheduled_at"] = now.Add(s.offset)
		case entities.StatusPublished:
			published := now.Add(s.offset)
			post["published_at"] = published
			post["linkedin_post_id"] = "urn:li:share:demo" + postID[:8]
			post["linkedin_account_id"] = primaryID

			f.Analytics = append(f.Analytics, map[string]interface{}{
				"post_id":         postID,
				"user_id":         ownerID,
				"impressions":     int64(1200 * (i + 1)),
				"clicks":          int64(40 * (i + 1)),
				"likes":           int64(60 * (i + 1)),
				"comments":        int64(8 * (i + 1)),
				"shares":          int64(3 * (i + 1)),
				"engagement_rate": 5.92,
				"recorded_at":     published.Add(12 * time.Hour),
			})
		}
		f.Posts = append(f.Posts, post)
	}

	return f
}

// AllSchemas returns all entity schemas in foreign key order
func AllSchemas() []*interfaces.Schema {
	return []*interfaces.Schema{
		entities.LinkedInAccountSchema,
		entities.PostSchema,
		entities.PostAnalyticsSchema,
	}
}
