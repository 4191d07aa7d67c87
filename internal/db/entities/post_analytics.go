package entities

import (
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

// PostAnalytics is one engagement snapshot of a published post.
type PostAnalytics struct {
	ID             string    `json:"id" db:"id"`
	PostID         string    `json:"post_id" db:"post_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Impressions    int64     `json:"impressions" db:"impressions"`
	Clicks         int64     `json:"clicks" db:"clicks"`
	Likes          int64     `json:"likes" db:"likes"`
	Comments       int64     `json:"comments" db:"comments"`
	Shares         int64     `json:"shares" db:"shares"`
	EngagementRate float64   `json:"engagement_rate" db:"engagement_rate"`
	RecordedAt     time.Time `json:"recorded_at" db:"recorded_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// PostAnalyticsSchema defines the database schema for analytics records
var PostAnalyticsSchema = &interfaces.Schema{
	TableName: "post_analytics",
	Fields: map[string]interfaces.FieldSchema{
		"id": {
			Type:       interfaces.TypeString,
			PrimaryKey: true,
		},
		"post_id": {
			Type: interfaces.TypeString,
			ForeignKey: &interfaces.ForeignKey{
				Table:    "posts",
				Column:   "id",
				OnDelete: "CASCADE",
			},
		},
		"user_id": {
			Type: interfaces.TypeString,
		},
		"impressions": {
			Type:         interfaces.TypeInt64,
			DefaultValue: int64(0),
		},
		"clicks": {
			Type:         interfaces.TypeInt64,
			DefaultValue: int64(0),
		},
		"likes": {
			Type:         interfaces.TypeInt64,
			DefaultValue: int64(0),
		},
		"comments": {
			Type:         interfaces.TypeInt64,
			DefaultValue: int64(0),
		},
		"shares": {
			Type:         interfaces.TypeInt64,
			DefaultValue: int64(0),
		},
		"engagement_rate": {
			Type:         interfaces.TypeFloat64,
			DefaultValue: float64(0),
		},
		"recorded_at": {
			Type: interfaces.TypeTime,
		},
		"created_at": {
			Type: interfaces.TypeTime,
		},
		"updated_at": {
			Type: interfaces.TypeTime,
		},
	},
	Indexes: []interfaces.Index{
		{
			Name:    "idx_post_analytics_user_recorded",
			Columns: []string{"user_id", "recorded_at"},
		},
	},
}
