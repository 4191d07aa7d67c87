package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/db/backends/memory"
	"github.com/postmaster/postmaster-backend/internal/db/backends/postgres"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/pkg/retry"
)

const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
)

// Config holds database configuration
type Config struct {
	Type   string // "memory" or "postgres"
	DSN    string // postgres connection string
	Logger *zap.SugaredLogger
}

// NewDatabase creates a new database instance based on configuration
func NewDatabase(config *Config) (interfaces.Database, error) {
	if config == nil {
		config = &Config{}
	}

	switch config.Type {
	case "", TypeMemory:
		return memory.NewDatabase(config.Logger), nil
	case TypePostgres:
		if config.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return postgres.NewDatabase(config.DSN, config.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// MustNewDatabase creates a new database instance and panics on error
func MustNewDatabase(config *Config) interfaces.Database {
	db, err := NewDatabase(config)
	if err != nil {
		panic(fmt.Sprintf("failed to create database: %v", err))
	}
	return db
}

// NewInMemoryDatabase creates a new in-memory database instance
func NewInMemoryDatabase() interfaces.Database {
	return memory.NewDatabase(nil)
}

// ConnectAndMigrate connects to the database, retrying with backoff, and
// brings it up to schemas.
func ConnectAndMigrate(ctx context.Context, db interfaces.Database, schemas []*interfaces.Schema, logger *zap.SugaredLogger, retryCfg retry.Config) error {
	err := retry.Do(ctx, logger, "database connect", func() error {
		return db.Connect(ctx)
	}, retryCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if !db.IsHealthy(ctx) {
		return fmt.Errorf("database health check failed")
	}

	if err := db.Migrate(ctx, schemas); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
