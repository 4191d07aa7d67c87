package interfaces

import "context"

// Database represents the main database interface
type Database interface {
	// Connect establishes a connection to the database
	Connect(ctx context.Context) error

	// Disconnect closes the database connection
	Disconnect(ctx context.Context) error

	// IsHealthy checks if the database connection is healthy
	IsHealthy(ctx context.Context) bool

	// Transaction executes fn atomically. Repositories called with the ctx
	// passed to fn take part in the transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	// Repository returns a repository for the given schema
	Repository(schema *Schema) Repository

	// Migrate brings the storage up to the given schemas
	Migrate(ctx context.Context, schemas []*Schema) error

	// Seed inserts initial data into the database
	Seed(ctx context.Context, schema *Schema, data []map[string]interface{}) error
}
