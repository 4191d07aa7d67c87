package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/internal/db/query"
)

// Database implements the Database interface for in-memory storage
type Database struct {
	mu        sync.RWMutex
	tables    map[string]map[string]map[string]interface{} // tableName -> recordID -> record
	schemas   map[string]*interfaces.Schema                // tableName -> schema
	connected bool
	logger    *zap.SugaredLogger
}

// NewDatabase creates a new in-memory database
func NewDatabase(logger *zap.SugaredLogger) *Database {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Database{
		tables:  make(map[string]map[string]map[string]interface{}),
		schemas: make(map[string]*interfaces.Schema),
		logger:  logger,
	}
}

// Connect establishes a connection to the database
func (db *Database) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.connected = true
	db.logger.Infow("Connected to database", "backend", "memory")
	return nil
}

// Disconnect closes the database connection
func (db *Database) Disconnect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.connected = false
	db.tables = make(map[string]map[string]map[string]interface{})
	db.schemas = make(map[string]*interfaces.Schema)
	db.logger.Infow("Disconnected from database", "backend", "memory")
	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *Database) IsHealthy(ctx context.Context) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.connected
}

// Transaction executes fn against a snapshot that is restored on error
func (db *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	if !db.IsHealthy(ctx) {
		return interfaces.ErrDatabaseNotConnected
	}

	tx := NewTransaction(db)

	defer func() {
		if !tx.IsCompleted() {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// Repository returns a repository for the given schema
func (db *Database) Repository(schema *interfaces.Schema) interfaces.Repository {
	db.mu.Lock()
	db.schemas[schema.TableName] = schema
	db.mu.Unlock()

	return NewRepository(db, schema)
}

// Migrate creates tables and applies schema changes
func (db *Database) Migrate(ctx context.Context, schemas []*interfaces.Schema) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.connected {
		return interfaces.ErrDatabaseNotConnected
	}

	for _, schema := range schemas {
		db.schemas[schema.TableName] = schema

		if _, exists := db.tables[schema.TableName]; !exists {
			db.tables[schema.TableName] = make(map[string]map[string]interface{})
			db.logger.Debugw("Created table", "table", schema.TableName)
		}
	}

	db.logger.Infow("Migration completed", "backend", "memory", "schemas", len(schemas))
	return nil
}

// Seed inserts initial data into the database
func (db *Database) Seed(ctx context.Context, schema *interfaces.Schema, data []map[string]interface{}) error {
	if !db.IsHealthy(ctx) {
		return interfaces.ErrDatabaseNotConnected
	}

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

// applyDeleteRules enforces ON DELETE for every table referencing
// table.id = id. Callers hold db.mu.
func (db *Database) applyDeleteRules(table, id string) error {
	type ref struct {
		table, field, onDelete string
	}
	var refs []ref
	for name, schema := range db.schemas {
		for field, fs := range schema.Fields {
			if fs.ForeignKey != nil && fs.ForeignKey.Table == table {
				refs = append(refs, ref{name, field, fs.ForeignKey.OnDelete})
			}
		}
	}

	// RESTRICT is checked before any cascade runs
	for _, rf := range refs {
		if rf.onDelete == "CASCADE" || rf.onDelete == "SET_NULL" {
			continue
		}
		for _, record := range db.tables[rf.table] {
			if record[rf.field] == id {
				return fmt.Errorf("%w: record is referenced by table '%s', field '%s'", interfaces.ErrForeignKeyConstraint, rf.table, rf.field)
			}
		}
	}

	for _, rf := range refs {
		rows := db.tables[rf.table]
		for rid, record := range rows {
			if record[rf.field] != id {
				continue
			}
			switch rf.onDelete {
			case "CASCADE":
				if err := db.applyDeleteRules(rf.table, rid); err != nil {
					return err
				}
				delete(rows, rid)
			case "SET_NULL":
				cleared := query.Clone(record)
				cleared[rf.field] = nil
				rows[rid] = cleared
			}
		}
	}
	return nil
}

// GetTables returns all table names (for debugging/testing)
func (db *Database) GetTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tables := make([]string, 0, len(db.tables))
	for name := range db.tables {
		tables = append(tables, name)
	}
	return tables
}

// Clear removes all data from all tables (for testing)
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()

	for tableName := range db.tables {
		db.tables[tableName] = make(map[string]map[string]interface{})
	}
}
