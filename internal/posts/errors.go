package posts

import (
	"fmt"

	"github.com/postmaster/postmaster-backend/internal/apperr"
)

var (
	ErrPostNotFound       = apperr.New(apperr.CodeNotFound, "Post not found")
	ErrAlreadyPublished   = apperr.New(apperr.CodeAlreadyPublished, "Post is already published")
	ErrPublishInProgress  = apperr.New(apperr.CodeConflict, "Post is already being published")
	ErrPublishedImmutable = apperr.New(apperr.CodeInvalidInput, "Published posts cannot be edited")
	ErrScheduleRequired   = apperr.New(apperr.CodeInvalidInput, "scheduledAt is required for scheduled posts")
	ErrInvalidStatus      = apperr.New(apperr.CodeInvalidInput, "Status must be draft or scheduled")
)

// AssetFetchError means a post image could not be downloaded.
type AssetFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *AssetFetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("Failed to download image: %v", e.Err)
	case e.Status != 0:
		return fmt.Sprintf("Failed to download image: status %d", e.Status)
	}
	return "Failed to download image"
}

func (e *AssetFetchError) Unwrap() error {
	return e.Err
}
