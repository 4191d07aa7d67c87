package memory

import (
	"context"
	"sync"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/internal/db/query"
)

// Transaction is a snapshot of every table taken at begin and restored on
// rollback. Writes from outside the transaction made in the meantime are
// lost on rollback.
type Transaction struct {
	mu         sync.Mutex
	db         *Database
	snapshot   map[string]map[string]map[string]interface{} // table -> id -> record
	committed  bool
	rolledBack bool
}

// NewTransaction creates a new in-memory transaction
func NewTransaction(db *Database) *Transaction {
	tx := &Transaction{
		db:       db,
		snapshot: make(map[string]map[string]map[string]interface{}),
	}

	db.mu.RLock()
	for tableName, table := range db.tables {
		tx.snapshot[tableName] = make(map[string]map[string]interface{}, len(table))
		for id, record := range table {
			tx.snapshot[tableName][id] = query.Clone(record)
		}
	}
	db.mu.RUnlock()

	return tx
}

// Commit commits the transaction
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return interfaces.ErrTransactionCompleted
	}

	tx.committed = true
	tx.snapshot = nil
	return nil
}

// Rollback rolls back the transaction
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return interfaces.ErrTransactionCompleted
	}

	tx.db.mu.Lock()
	tx.db.tables = tx.snapshot
	tx.db.mu.Unlock()

	tx.rolledBack = true
	return nil
}

// IsCompleted returns true if the transaction has been committed or rolled back
func (tx *Transaction) IsCompleted() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return tx.committed || tx.rolledBack
}
