package entities

import (
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

// LinkedInAccount is a LinkedIn identity an owner connected through OAuth.
// The access token never leaves the backend.
type LinkedInAccount struct {
	ID                 string     `json:"id" db:"id"`
	UserID             string     `json:"user_id" db:"user_id"`
	LinkedInID         string     `json:"linkedin_id" db:"linkedin_id"`
	AccessToken        string     `json:"-" db:"linkedin_access_token"`
	ExpiresAt          *time.Time `json:"linkedin_expires_at" db:"linkedin_expires_at"`
	DisplayName        string     `json:"display_name" db:"display_name"`
	ProfilePictureURL  *string    `json:"profile_picture_url" db:"profile_picture_url"`
	LinkedInProfileURL *string    `json:"linkedin_profile_url" db:"linkedin_profile_url"`
	IsPrimary          bool       `json:"is_primary" db:"is_primary"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	LastUsedAt         *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// LinkedInAccountSchema defines the database schema for linked accounts
var LinkedInAccountSchema = &interfaces.Schema{
	TableName: "linkedin_accounts",
	Fields: map[string]interfaces.FieldSchema{
		"id": {
			Type:       interfaces.TypeString,
			PrimaryKey: true,
		},
		"user_id": {
			Type: interfaces.TypeString,
		},
		"linkedin_id": {
			Type: interfaces.TypeString,
		},
		"linkedin_access_token": {
			Type: interfaces.TypeString,
		},
		"linkedin_expires_at": {
			Type:     interfaces.TypeTime,
			Nullable: true,
		},
		"display_name": {
			Type:         interfaces.TypeString,
			DefaultValue: "",
		},
		"profile_picture_url": {
			Type:     interfaces.TypeString,
			Nullable: true,
		},
		"linkedin_profile_url": {
			Type:     interfaces.TypeString,
			Nullable: true,
		},
		"is_primary": {
			Type:         interfaces.TypeBool,
			DefaultValue: false,
		},
		"is_active": {
			Type:         interfaces.TypeBool,
			DefaultValue: true,
		},
		"last_used_at": {
			Type:     interfaces.TypeTime,
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
			Name:    "uq_linkedin_accounts_user_linkedin",
			Columns: []string{"user_id", "linkedin_id"},
			Unique:  true,
		},
		{
			Name:    "uq_linkedin_accounts_primary",
			Columns: []string{"user_id"},
			Unique:  true,
			Where:   []string{"is_primary", "is_active"},
		},
	},
}
