package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

type AccountStore struct {
	repo   interfaces.Repository
	logger *zap.SugaredLogger
}

func activeScope(owner string) *interfaces.Filters {
	return interfaces.Where(
		interfaces.Eq("user_id", owner),
		interfaces.Eq("is_active", true),
	)
}

// ListActive returns the owner's active accounts, primary first, then by
// display name.
func (s *AccountStore) ListActive(ctx context.Context, owner string) ([]*entities.LinkedInAccount, error) {
	page, err := s.repo.FindMany(ctx, &interfaces.Query{
		Where: activeScope(owner),
		OrderBy: []interfaces.OrderBy{
			{Field: "is_primary", Direction: "desc"},
			{Field: "display_name", Direction: "asc"},
		},
	})
	if err != nil {
		return nil, err
	}
	accounts := make([]*entities.LinkedInAccount, 0, len(page.Data))
	for _, rec := range page.Data {
		accounts = append(accounts, accountFromRecord(rec))
	}
	return accounts, nil
}

// GetActive returns the owner's account id if it is active.
func (s *AccountStore) GetActive(ctx context.Context, owner, id string) (*entities.LinkedInAccount, error) {
	where := activeScope(owner)
	where.Conditions = append(where.Conditions, interfaces.Eq("id", id))
	rec, err := s.repo.FindOne(ctx, &interfaces.Query{Where: where})
	if err != nil {
		return nil, err
	}
	return accountFromRecord(rec), nil
}

// Primary returns the owner's active primary account.
func (s *AccountStore) Primary(ctx context.Context, owner string) (*entities.LinkedInAccount, error) {
	where := activeScope(owner)
	where.Conditions = append(where.Conditions, interfaces.Eq("is_primary", true))
	rec, err := s.repo.FindOne(ctx, &interfaces.Query{Where: where})
	if err != nil {
		return nil, err
	}
	return accountFromRecord(rec), nil
}

// MostRecentlyUsed returns the owner's active account with the latest
// last_used_at. Accounts never used rank after used ones, newest first.
func (s *AccountStore) MostRecentlyUsed(ctx context.Context, owner string) (*entities.LinkedInAccount, error) {
	page, err := s.repo.FindMany(ctx, &interfaces.Query{
		Where: activeScope(owner),
		OrderBy: []interfaces.OrderBy{
			{Field: "last_used_at", Direction: "desc"},
			{Field: "created_at", Direction: "desc"},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, ErrNotFound
	}
	// NULL last_used_at sorts first descending on both backends
	for _, rec := range page.Data {
		if rec["last_used_at"] != nil {
			return accountFromRecord(rec), nil
		}
	}
	return accountFromRecord(page.Data[0]), nil
}

// CountActive counts the owner's active accounts.
func (s *AccountStore) CountActive(ctx context.Context, owner string) (int64, error) {
	return s.repo.Count(ctx, &interfaces.Query{Where: activeScope(owner)})
}

// Upsert stores a connected account keyed by (owner, provider id) and
// reactivates it. primary is only ever raised here, never lowered.
func (s *AccountStore) Upsert(ctx context.Context, account *entities.LinkedInAccount, primary bool) (*entities.LinkedInAccount, error) {
	data := map[string]interface{}{
		"linkedin_access_token": account.AccessToken,
		"linkedin_expires_at":   nullableTime(account.ExpiresAt),
		"display_name":          account.DisplayName,
		"profile_picture_url":   nullableString(account.ProfilePictureURL),
		"linkedin_profile_url":  nullableString(account.LinkedInProfileURL),
		"is_active":             true,
		"last_used_at":          nullableTime(account.LastUsedAt),
	}
	if primary {
		data["is_primary"] = true
	}

	rec, err := s.repo.Upsert(ctx, map[string]interface{}{
		"user_id":     account.UserID,
		"linkedin_id": account.LinkedInID,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return accountFromRecord(rec), nil
}

// SetPrimary makes id the owner's only active primary account. A non-nil
// usedAt also records it as last_used_at.
func (s *AccountStore) SetPrimary(ctx context.Context, owner, id string, usedAt *time.Time) (*entities.LinkedInAccount, error) {
	var extra map[string]interface{}
	if usedAt != nil {
		extra = map[string]interface{}{"last_used_at": usedAt.UTC()}
	}
	rec, err := s.repo.SetExclusive(ctx, activeScope(owner), interfaces.StringID(id), "is_primary", extra)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("set primary account: %w", err)
	}
	return accountFromRecord(rec), nil
}

// Deactivate soft-deletes the owner's account and clears its primary flag.
func (s *AccountStore) Deactivate(ctx context.Context, owner, id string) error {
	where := activeScope(owner)
	where.Conditions = append(where.Conditions, interfaces.Eq("id", id))
	n, err := s.repo.UpdateWhere(ctx, where, map[string]interface{}{
		"is_active":  false,
		"is_primary": false,
	})
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateAll soft-deletes every account of the owner.
func (s *AccountStore) DeactivateAll(ctx context.Context, owner string) (int64, error) {
	n, err := s.repo.UpdateWhere(ctx, activeScope(owner), map[string]interface{}{
		"is_active":  false,
		"is_primary": false,
	})
	if err != nil {
		return 0, fmt.Errorf("deactivate accounts: %w", err)
	}
	return n, nil
}

// Touch records that the account was just used.
func (s *AccountStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.repo.Update(ctx, interfaces.StringID(id), map[string]interface{}{
		"last_used_at": at.UTC(),
	})
	return err
}
