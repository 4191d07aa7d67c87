package accounts

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/events"
	"github.com/postmaster/postmaster-backend/internal/repository"
)

// Callback outcome codes, sent back to the UI as ?error=<code>.
const (
	OutcomeMissingParams       = "missing_params"
	OutcomeInvalidState        = "invalid_state"
	OutcomeTokenExchangeFailed = "token_exchange_failed"
	OutcomeProfileFetchFailed  = "profile_fetch_failed"
	OutcomeDatabaseError       = "database_error"
	OutcomeUnexpectedError     = "unexpected_error"
)

// CallbackParams are the query parameters LinkedIn redirects back with.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// CallbackResult is the outcome of a connect callback. An empty Error means
// the account was stored.
type CallbackResult struct {
	Error   string
	Account *entities.LinkedInAccount
}

// Query renders the result as the dashboard redirect query.
func (r CallbackResult) Query() url.Values {
	q := url.Values{}
	if r.Error != "" {
		q.Set("error", r.Error)
	} else {
		q.Set("linkedin", "connected")
	}
	return q
}

// ConnectURL returns the LinkedIn authorize URL with the user id as state.
func (s *Service) ConnectURL(userID string) (string, error) {
	authURL, err := s.oauth.AuthCodeURL(userID)
	if err != nil {
		return "", apperr.WrapWithCode(err, apperr.CodeMisconfigured, err.Error())
	}
	return authURL, nil
}

// CompleteConnect handles the OAuth callback for userID, which is empty when
// the request carries no session. No account row is written unless the state
// matches the session user.
func (s *Service) CompleteConnect(ctx context.Context, userID string, p CallbackParams) CallbackResult {
	if p.Error != "" {
		return CallbackResult{Error: p.Error}
	}
	if p.Code == "" || p.State == "" {
		return CallbackResult{Error: OutcomeMissingParams}
	}
	if userID == "" || p.State != userID {
		s.logger.Warnw("OAuth state mismatch", "user", userID)
		return CallbackResult{Error: OutcomeInvalidState}
	}

	token, err := s.oauth.Exchange(ctx, p.Code)
	if err != nil {
		s.logger.Errorw("Token exchange failed", "user", userID, "error", err)
		return CallbackResult{Error: OutcomeTokenExchangeFailed}
	}

	profile, err := s.provider.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		s.logger.Errorw("Profile fetch failed", "user", userID, "error", err)
		return CallbackResult{Error: OutcomeProfileFetchFailed}
	}

	active, err := s.repo.Accounts.CountActive(ctx, userID)
	if err != nil {
		s.logger.Errorw("Failed to count accounts", "user", userID, "error", err)
		return CallbackResult{Error: OutcomeUnexpectedError}
	}

	now := s.now().UTC()
	account := &entities.LinkedInAccount{
		UserID:      userID,
		LinkedInID:  profile.Sub,
		AccessToken: token.AccessToken,
		DisplayName: profile.DisplayName(),
		LastUsedAt:  &now,
	}
	if !token.ExpiresAt.IsZero() {
		expires := token.ExpiresAt.UTC()
		account.ExpiresAt = &expires
	}
	if profile.Picture != "" {
		account.ProfilePictureURL = &profile.Picture
	}
	if profile.Profile != "" {
		account.LinkedInProfileURL = &profile.Profile
	}

	stored, err := s.repo.Accounts.Upsert(ctx, account, active == 0)
	if errors.Is(err, repository.ErrConflict) && active == 0 {
		// another connect won the first-account race
		stored, err = s.repo.Accounts.Upsert(ctx, account, false)
	}
	if err != nil {
		s.logger.Errorw("Failed to store LinkedIn account", "user", userID, "error", err)
		return CallbackResult{Error: OutcomeDatabaseError}
	}

	s.logger.Infow("LinkedIn account connected", "user", userID, "account", stored.ID, "primary", stored.IsPrimary)
	s.changed(ctx, userID, events.Notification{
		Type:      events.TypeAccountConnected,
		Level:     events.LevelSuccess,
		Title:     "LinkedIn connected",
		Message:   stored.DisplayName,
		AccountID: stored.ID,
	})
	return CallbackResult{Account: stored}
}

// Touch records that account was just used to publish.
func (s *Service) Touch(ctx context.Context, accountID string, at time.Time) {
	if err := s.repo.Accounts.Touch(ctx, accountID, at); err != nil {
		s.logger.Warnw("Failed to touch account", "account", accountID, "error", err)
	}
}
