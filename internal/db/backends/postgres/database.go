// Package postgres implements the db interfaces on pgx with squirrel-built SQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/migrations"
)

// SqBuilder renders $n placeholders for postgres.
var SqBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type txKey struct{}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Database implements interfaces.Database on a pgx pool
type Database struct {
	mu     sync.RWMutex
	dsn    string
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewDatabase creates an unconnected postgres database
func NewDatabase(dsn string, logger *zap.SugaredLogger) *Database {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Database{dsn: dsn, logger: logger}
}

// Connect opens the pool and verifies it with a ping
func (db *Database) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, db.dsn)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	db.pool = pool
	db.logger.Infow("Connected to database", "backend", "postgres")
	return nil
}

// Disconnect closes the pool
func (db *Database) Disconnect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.pool != nil {
		db.pool.Close()
		db.pool = nil
		db.logger.Infow("Disconnected from database", "backend", "postgres")
	}
	return nil
}

// IsHealthy pings the pool
func (db *Database) IsHealthy(ctx context.Context) bool {
	pool := db.getPool()
	if pool == nil {
		return false
	}
	return pool.Ping(ctx) == nil
}

// Pool exposes the underlying pool for tooling
func (db *Database) Pool() *pgxpool.Pool {
	return db.getPool()
}

func (db *Database) getPool() *pgxpool.Pool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.pool
}

// querier returns the transaction bound to ctx, or the pool.
func (db *Database) querier(ctx context.Context) (querier, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, nil
	}
	pool := db.getPool()
	if pool == nil {
		return nil, interfaces.ErrDatabaseNotConnected
	}
	return pool, nil
}

// Transaction runs fn in a transaction bound to the ctx it receives. A
// transaction already bound to ctx is nested through a savepoint.
func (db *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	var (
		pgTx pgx.Tx
		err  error
	)
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		pgTx, err = outer.Begin(ctx)
	} else {
		pool := db.getPool()
		if pool == nil {
			return interfaces.ErrDatabaseNotConnected
		}
		pgTx, err = pool.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Transaction{tx: pgTx}
	defer func() {
		if !tx.IsCompleted() {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, pgTx), tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Repository returns a repository for the given schema
func (db *Database) Repository(schema *interfaces.Schema) interfaces.Repository {
	return NewRepository(db, schema)
}

// Migrate applies the embedded goose migrations. Schemas are declared in
// SQL, so the argument only serves to verify the tables exist afterwards.
func (db *Database) Migrate(ctx context.Context, schemas []*interfaces.Schema) error {
	pool := db.getPool()
	if pool == nil {
		return interfaces.ErrDatabaseNotConnected
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := migrations.Up(ctx, sqlDB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, schema := range schemas {
		var exists bool
		err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", schema.TableName).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %s: %w", schema.TableName, err)
		}
		if !exists {
			return fmt.Errorf("table %s missing after migration", schema.TableName)
		}
	}

	db.logger.Infow("Migration completed", "backend", "postgres", "schemas", len(schemas))
	return nil
}

// Seed inserts initial data into the database
func (db *Database) Seed(ctx context.Context, schema *interfaces.Schema, data []map[string]interface{}) error {
	repo := db.Repository(schema)

	seeded := 0
	for i, record := range data {
		if _, err := repo.Create(ctx, record); err != nil {
			db.logger.Warnw("Failed to seed record", "table", schema.TableName, "index", i, "error", err)
			continue
		}
		seeded++
	}

	db.logger.Infow("Seeded table", "table", schema.TableName, "records", seeded)
	return nil
}

// Transaction wraps pgx.Tx
type Transaction struct {
	mu        sync.Mutex
	tx        pgx.Tx
	completed bool
}

// Commit commits the transaction
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		return interfaces.ErrTransactionCompleted
	}
	t.completed = true
	return t.tx.Commit(ctx)
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		return interfaces.ErrTransactionCompleted
	}
	t.completed = true
	return t.tx.Rollback(ctx)
}

// IsCompleted returns true if the transaction has been committed or rolled back
func (t *Transaction) IsCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// mapError translates driver errors to the interfaces sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", interfaces.ErrUniqueConstraint, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", interfaces.ErrForeignKeyConstraint, pgErr.ConstraintName)
		case "23502", "23514", "22P02":
			return fmt.Errorf("%w: %s", interfaces.ErrInvalidQuery, pgErr.Message)
		}
	}
	return &interfaces.DatabaseError{Op: "postgres", Err: err}
}
