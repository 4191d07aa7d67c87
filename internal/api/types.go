package api

import (
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type CreatePostRequest struct {
	Title       string     `json:"title" validate:"max=300"`
	Content     string     `json:"content" validate:"max=3000"`
	Images      []string   `json:"images" validate:"max=9,dive,required"`
	Hashtags    []string   `json:"hashtags" validate:"max=30"`
	Status      string     `json:"status" validate:"omitempty,oneof=draft scheduled"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	ArticleURL  *string    `json:"articleUrl" validate:"omitempty,url|len=0"`
}

type UpdatePostRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=300"`
	Content     *string    `json:"content" validate:"omitempty,max=3000"`
	Images      []string   `json:"images" validate:"omitempty,max=9,dive,required"`
	Hashtags    []string   `json:"hashtags" validate:"omitempty,max=30"`
	Status      *string    `json:"status" validate:"omitempty,oneof=draft scheduled"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	ArticleURL  *string    `json:"articleUrl" validate:"omitempty,url|len=0"`
}

type SetStatusRequest struct {
	Status      string     `json:"status" validate:"required,oneof=draft scheduled"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type PublishRequest struct {
	PostID    string `json:"postId"`
	AccountID string `json:"accountId"`
}

type AccountRequest struct {
	AccountID string `json:"accountId"`
	Action    string `json:"action,omitempty"`
}

type PostsResponse struct {
	Posts []*entities.Post `json:"posts"`
}

type PostResponse struct {
	Post *entities.Post `json:"post"`
}

type AccountsResponse struct {
	Accounts []*entities.LinkedInAccount `json:"accounts"`
}

type AccountResponse struct {
	Success bool                      `json:"success"`
	Account *entities.LinkedInAccount `json:"account"`
}

type ConnectResponse struct {
	AuthURL string `json:"authUrl"`
}

type TestConnectionResponse struct {
	Success bool              `json:"success"`
	Profile *linkedin.Profile `json:"profile"`
}

type ReadyResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	LinkedIn linkedin.Health   `json:"linkedin"`
}
