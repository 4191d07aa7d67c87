package entities

import (
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	StatusDraft      PostStatus = "draft"
	StatusScheduled  PostStatus = "scheduled"
	StatusPublishing PostStatus = "publishing"
	StatusPublished  PostStatus = "published"
	StatusFailed     PostStatus = "failed"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublishing, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// Publishable reports whether a post in status s may be claimed for publishing.
func (s PostStatus) Publishable() bool {
	return s == StatusDraft || s == StatusScheduled || s == StatusFailed
}

// Post represents a post entity
type Post struct {
	ID                string                 `json:"id" db:"id"`
	UserID            string                 `json:"user_id" db:"user_id"`
	Title             string                 `json:"title" db:"title"`
	Content           string                 `json:"content" db:"content"`
	Images            []string               `json:"images" db:"images"`
	Hashtags          []string               `json:"hashtags" db:"hashtags"`
	Status            PostStatus             `json:"status" db:"status"`
	ScheduledAt       *time.Time             `json:"scheduled_at" db:"scheduled_at"`
	PublishedAt       *time.Time             `json:"published_at" db:"published_at"`
	LinkedInPostID    *string                `json:"linkedin_post_id" db:"linkedin_post_id"`
	LinkedInAccountID *string                `json:"linkedin_account_id" db:"linkedin_account_id"`
	ArticleURL        *string                `json:"article_url" db:"article_url"`
	EngagementData    map[string]interface{} `json:"engagement_data,omitempty" db:"engagement_data"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// PostSchema defines the database schema for posts
var PostSchema = &interfaces.Schema{
	TableName: "posts",
	Fields: map[string]interfaces.FieldSchema{
		"id": {
			Type:       interfaces.TypeString,
			PrimaryKey: true,
		},
		"user_id": {
			Type: interfaces.TypeString,
		},
		"title": {
			Type:         interfaces.TypeString,
			DefaultValue: "",
		},
		"content": {
			Type:         interfaces.TypeString,
			DefaultValue: "",
		},
		"images": {
			Type:         interfaces.TypeStringArray,
			DefaultValue: []string{},
		},
		"hashtags": {
			Type:         interfaces.TypeStringArray,
			DefaultValue: []string{},
		},
		"status": {
			Type:         interfaces.TypeString,
			DefaultValue: string(StatusDraft),
		},
		"scheduled_at": {
			Type:     interfaces.TypeTime,
			Nullable: true,
		},
		"published_at": {
			Type:     interfaces.TypeTime,
			Nullable: true,
		},
		"linkedin_post_id": {
			Type:     interfaces.TypeString,
			Nullable: true,
		},
		"linkedin_account_id": {
			Type:     interfaces.TypeString,
			Nullable: true,
			ForeignKey: &interfaces.ForeignKey{
				Table:    "linkedin_accounts",
				Column:   "id",
				OnDelete: "SET_NULL",
			},
		},
		"article_url": {
			Type:     interfaces.TypeString,
			Nullable: true,
		},
		"engagement_data": {
			Type:     interfaces.TypeJSON,
			Nullable: true,
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
			Name:    "idx_posts_user_created",
			Columns: []string{"user_id", "created_at"},
		},
		{
			Name:    "idx_posts_due",
			Columns: []string{"status", "scheduled_at"},
		},
	},
}
