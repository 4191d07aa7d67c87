// Package accounts manages the LinkedIn accounts a user has connected and
// picks the one a post is published with.
package accounts

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/events"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
	"github.com/postmaster/postmaster-backend/internal/repository"
)

var (
	ErrNotConnected    = apperr.New(apperr.CodeAccountNotConnected, "LinkedIn not connected")
	ErrAccountNotFound = apperr.New(apperr.CodeNotFound, "Account not found")
)

// ProfileFetcher reads the member profile behind an access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (*linkedin.Profile, error)
}

// Authorizer runs the OAuth authorization code flow.
type Authorizer interface {
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*linkedin.Token, error)
}

// Invalidator drops cached per-user views after a change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

type Service struct {
	repo       *repository.Repository
	provider   ProfileFetcher
	oauth      Authorizer
	notifier   events.Notifier
	invalidate Invalidator
	logger     *zap.SugaredLogger
	now        func() time.Time
}

type Option func(*Service)

func WithNotifier(n events.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.invalidate = i }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo *repository.Repository, provider ProfileFetcher, oauth Authorizer, logger *zap.SugaredLogger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{
		repo:     repo,
		provider: provider,
		oauth:    oauth,
		notifier: events.Discard,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve picks the account to publish with. An explicit accountID must be
// active and owned by owner; otherwise the active primary is used. It returns
// nil, nil when nothing matches.
func (s *Service) Resolve(ctx context.Context, owner, accountID string) (*entities.LinkedInAccount, error) {
	var (
		account *entities.LinkedInAccount
		err     error
	)
	if accountID != "" {
		account, err = s.repo.Accounts.GetActive(ctx, owner, accountID)
	} else {
		account, err = s.repo.Accounts.Primary(ctx, owner)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to load LinkedIn account")
	}
	return account, nil
}

// List returns the owner's active accounts, primary first.
func (s *Service) List(ctx context.Context, owner string) ([]*entities.LinkedInAccount, error) {
	accounts, err := s.repo.Accounts.ListActive(ctx, owner)
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to fetch accounts")
	}
	return accounts, nil
}

// SetPrimary makes accountID the owner's single primary account. touch also
// marks it as just used.
func (s *Service) SetPrimary(ctx context.Context, owner, accountID string, touch bool) (*entities.LinkedInAccount, error) {
	var usedAt *time.Time
	if touch {
		now := s.now()
		usedAt = &now
	}
	account, err := s.repo.Accounts.SetPrimary(ctx, owner, accountID, usedAt)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to set primary account")
	}

	s.changed(ctx, owner, events.Notification{
		Type:      events.TypeAccountPrimary,
		Level:     events.LevelSuccess,
		Title:     "Primary account updated",
		Message:   account.DisplayName,
		AccountID: account.ID,
	})
	return account, nil
}

// Remove soft-deletes one account. When it was the primary, the owner's most
// recently used remaining account is promoted in the same transaction.
func (s *Service) Remove(ctx context.Context, owner, accountID string) error {
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		account, err := s.repo.Accounts.GetActive(ctx, owner, accountID)
		if err != nil {
			return err
		}
		if err := s.repo.Accounts.Deactivate(ctx, owner, accountID); err != nil {
			return err
		}
		if !account.IsPrimary {
			return nil
		}

		next, err := s.repo.Accounts.MostRecentlyUsed(ctx, owner)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = s.repo.Accounts.SetPrimary(ctx, owner, next.ID, nil)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to delete account")
	}

	s.changed(ctx, owner, events.Notification{
		Type:      events.TypeAccountRemoved,
		Level:     events.LevelInfo,
		Title:     "LinkedIn account removed",
		AccountID: accountID,
	})
	return nil
}

// Disconnect deactivates every account of the owner.
func (s *Service) Disconnect(ctx context.Context, owner string) error {
	n, err := s.repo.Accounts.DeactivateAll(ctx, owner)
	if err != nil {
		return apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to remove LinkedIn connection")
	}
	s.logger.Infow("Disconnected LinkedIn", "user", owner, "accounts", n)
	s.changed(ctx, owner, events.Notification{
		Type:  events.TypeAccountRemoved,
		Level: events.LevelInfo,
		Title: "LinkedIn disconnected",
	})
	return nil
}

// TestConnection fetches the profile behind the resolved account's token.
func (s *Service) TestConnection(ctx context.Context, owner, accountID string) (*linkedin.Profile, error) {
	account, err := s.Resolve(ctx, owner, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotConnected
	}

	profile, err := s.provider.FetchProfile(ctx, account.AccessToken)
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeProvider, err.Error())
	}
	return profile, nil
}

func (s *Service) changed(ctx context.Context, owner string, n events.Notification) {
	if s.invalidate != nil {
		s.invalidate.Invalidate(ctx, owner)
	}
	s.notifier.Notify(ctx, owner, n)
}
