package repository

import (
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
)

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func strPtr(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func timeVal(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t
}

func timePtr(v interface{}) *time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func boolVal(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func stringSlice(v interface{}) []string {
	switch arr := v.(type) {
	case []string:
		return append([]string{}, arr...)
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func jsonMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// nullable turns typed nil pointers into untyped nil for the db layer.
func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func postFromRecord(r map[string]interface{}) *entities.Post {
	return &entities.Post{
		ID:                str(r["id"]),
		UserID:            str(r["user_id"]),
		Title:             str(r["title"]),
		Content:           str(r["content"]),
		Images:            stringSlice(r["images"]),
		Hashtags:          stringSlice(r["hashtags"]),
		Status:            entities.PostStatus(str(r["status"])),
		ScheduledAt:       timePtr(r["scheduled_at"]),
		PublishedAt:       timePtr(r["published_at"]),
		LinkedInPostID:    strPtr(r["linkedin_post_id"]),
		LinkedInAccountID: strPtr(r["linkedin_account_id"]),
		ArticleURL:        strPtr(r["article_url"]),
		EngagementData:    jsonMap(r["engagement_data"]),
		CreatedAt:         timeVal(r["created_at"]),
		UpdatedAt:         timeVal(r["updated_at"]),
	}
}

func accountFromRecord(r map[string]interface{}) *entities.LinkedInAccount {
	return &entities.LinkedInAccount{
		ID:                 str(r["id"]),
		UserID:             str(r["user_id"]),
		LinkedInID:         str(r["linkedin_id"]),
		AccessToken:        str(r["linkedin_access_token"]),
		ExpiresAt:          timePtr(r["linkedin_expires_at"]),
		DisplayName:        str(r["display_name"]),
		ProfilePictureURL:  strPtr(r["profile_picture_url"]),
		LinkedInProfileURL: strPtr(r["linkedin_profile_url"]),
		IsPrimary:          boolVal(r["is_primary"]),
		IsActive:           boolVal(r["is_active"]),
		LastUsedAt:         timePtr(r["last_used_at"]),
		CreatedAt:          timeVal(r["created_at"]),
		UpdatedAt:          timeVal(r["updated_at"]),
	}
}

func analyticsFromRecord(r map[string]interface{}) *entities.PostAnalytics {
	return &entities.PostAnalytics{
		ID:             str(r["id"]),
		PostID:         str(r["post_id"]),
		UserID:         str(r["user_id"]),
		Impressions:    toInt64(r["impressions"]),
		Clicks:         toInt64(r["clicks"]),
		Likes:          toInt64(r["likes"]),
		Comments:       toInt64(r["comments"]),
		Shares:         toInt64(r["shares"]),
		EngagementRate: toFloat64(r["engagement_rate"]),
		RecordedAt:     timeVal(r["recorded_at"]),
		CreatedAt:      timeVal(r["created_at"]),
		UpdatedAt:      timeVal(r["updated_at"]),
	}
}
