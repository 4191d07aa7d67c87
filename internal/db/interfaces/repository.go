package interfaces

import "context"

// Repository provides CRUD operations for a specific entity type
type Repository interface {
	// GetByID retrieves a single record by its ID
	GetByID(ctx context.Context, id ID) (map[string]interface{}, error)

	// FindOne retrieves the first record matching the query
	FindOne(ctx context.Context, query *Query) (map[string]interface{}, error)

	// FindMany retrieves multiple records matching the query with pagination
	FindMany(ctx context.Context, query *Query) (*ResultPage, error)

	// Create inserts a new record
	Create(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error)

	// Update modifies an existing record by ID
	Update(ctx context.Context, id ID, data map[string]interface{}) (map[string]interface{}, error)

	// UpdateWhere applies data to every record matching where in a single
	// atomic step and returns how many records changed. A nil where is
	// rejected with ErrInvalidQuery.
	UpdateWhere(ctx context.Context, where *Filters, data map[string]interface{}) (int64, error)

	// Upsert inserts or updates based on unique field constraints
	Upsert(ctx context.Context, uniqueFields map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error)

	// SetExclusive sets the boolean field flag on record id and clears it on
	// every other record matching scope, atomically. extra is applied to
	// record id alone. Returns ErrNotFound when id does not match scope.
	SetExclusive(ctx context.Context, scope *Filters, id ID, flag string, extra map[string]interface{}) (map[string]interface{}, error)

	// Delete removes a record by ID
	Delete(ctx context.Context, id ID) error

	// Count returns the number of records matching the query
	Count(ctx context.Context, query *Query) (int64, error)

	// GetSchema returns the schema for this repository
	GetSchema() *Schema
}
