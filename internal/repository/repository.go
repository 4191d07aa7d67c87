// Package repository maps the schema-generic db layer onto typed stores for
// posts, linked accounts and analytics. Every read and write is scoped to an
// owner.
package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

var (
	ErrNotFound = interfaces.ErrNotFound
	ErrConflict = interfaces.ErrUniqueConstraint
	// ErrClaimLost means a post left the publishing state before its outcome
	// could be recorded.
	ErrClaimLost = errors.New("post is no longer claimed for publishing")
)

type Repository struct {
	db     interfaces.Database
	logger *zap.SugaredLogger

	Posts     *PostStore
	Accounts  *AccountStore
	Analytics *AnalyticsStore
}

func NewRepository(db interfaces.Database, logger *zap.SugaredLogger) *Repository {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Repository{
		db:        db,
		logger:    logger,
		Posts:     &PostStore{repo: db.Repository(entities.PostSchema), logger: logger},
		Accounts:  &AccountStore{repo: db.Repository(entities.LinkedInAccountSchema), logger: logger},
		Analytics: &AnalyticsStore{repo: db.Repository(entities.PostAnalyticsSchema)},
	}
}

// Transaction runs fn atomically across the stores.
func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.Transaction(ctx, func(ctx context.Context, _ interfaces.Transaction) error {
		return fn(ctx)
	})
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	if !r.db.IsHealthy(ctx) {
		return fmt.Errorf("database unhealthy")
	}
	return nil
}
