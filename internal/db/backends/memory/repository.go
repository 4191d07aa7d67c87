package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/internal/db/query"
)

// Repository implements the Repository interface for in-memory storage
type Repository struct {
	db        *Database
	schema    *interfaces.Schema
	builder   *query.Builder
	tableName string
}

// NewRepository creates a new in-memory repository
func NewRepository(db *Database, schema *interfaces.Schema) *Repository {
	return &Repository{
		db:        db,
		schema:    schema,
		builder:   query.NewBuilder(schema),
		tableName: schema.TableName,
	}
}

// GetByID retrieves a single record by its ID
func (r *Repository) GetByID(ctx context.Context, id interfaces.ID) (map[string]interface{}, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if !r.db.connected {
		return nil, interfaces.ErrDatabaseNotConnected
	}

	record, exists := r.db.tables[r.tableName][id.String()]
	if !exists {
		return nil, interfaces.ErrNotFound
	}

	return query.Clone(record), nil
}

// FindOne retrieves the first record matching the query
func (r *Repository) FindOne(ctx context.Context, q *interfaces.Query) (map[string]interface{}, error) {
	one := interfaces.Query{}
	if q != nil {
		one = *q
	}
	limit := 1
	one.Limit = &limit

	result, err := r.FindMany(ctx, &one)
	if err != nil {
		return nil, err
	}

	if len(result.Data) == 0 {
		return nil, interfaces.ErrNotFound
	}

	return result.Data[0], nil
}

// FindMany retrieves multiple records matching the query with pagination
func (r *Repository) FindMany(ctx context.Context, q *interfaces.Query) (*interfaces.ResultPage, error) {
	if q == nil {
		q = &interfaces.Query{}
	}
	if err := r.builder.ValidateQuery(q); err != nil {
		return nil, err
	}

	r.db.mu.RLock()
	if !r.db.connected {
		r.db.mu.RUnlock()
		return nil, interfaces.ErrDatabaseNotConnected
	}
	records := make([]map[string]interface{}, 0, len(r.db.tables[r.tableName]))
	for _, record := range r.db.tables[r.tableName] {
		if r.builder.MatchesFilters(record, q.Where) {
			records = append(records, query.Clone(record))
		}
	}
	r.db.mu.RUnlock()

	total := int64(len(records))

	// map iteration order is random; fall back to insertion time for stability
	order := append(append([]interfaces.OrderBy{}, q.OrderBy...), interfaces.OrderBy{Field: "created_at", Direction: "asc"})
	records = r.builder.ApplySort(records, order)

	offset := 0
	if q.Offset != nil {
		offset = *q.Offset
	}
	pageSize := len(records)
	if q.Limit != nil {
		pageSize = *q.Limit
	}

	records = r.builder.ApplyPagination(records, q.Limit, q.Offset)

	if len(q.Select) > 0 {
		projected := make([]map[string]interface{}, 0, len(records))
		for _, record := range records {
			projectedRecord := make(map[string]interface{}, len(q.Select))
			for _, field := range q.Select {
				if value, exists := record[field]; exists {
					projectedRecord[field] = value
				}
			}
			projected = append(projected, projectedRecord)
		}
		records = projected
	}

	page := 1
	if pageSize > 0 {
		page = (offset / pageSize) + 1
	}

	return &interfaces.ResultPage{
		Data:     records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Create inserts a new record
func (r *Repository) Create(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	if err := r.builder.ValidateData(data); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.connected {
		return nil, interfaces.ErrDatabaseNotConnected
	}

	record, err := r.createLocked(data)
	if err != nil {
		return nil, err
	}
	return query.Clone(record), nil
}

func (r *Repository) createLocked(data map[string]interface{}) (map[string]interface{}, error) {
	record := r.builder.Normalize(query.Clone(data))

	if id, exists := record["id"]; !exists || id == nil || id == "" {
		record["id"] = uuid.NewString()
	}

	now := time.Now().UTC()
	if _, exists := record["created_at"]; !exists {
		record["created_at"] = now
	}
	record["updated_at"] = now

	for fieldName, fieldSchema := range r.schema.Fields {
		if _, exists := record[fieldName]; exists {
			continue
		}
		if fieldSchema.DefaultValue != nil {
			record[fieldName] = fieldSchema.DefaultValue
		} else {
			record[fieldName] = nil
		}
	}

	table := r.table()
	id := fmt.Sprint(record["id"])

	if _, exists := table[id]; exists {
		return nil, fmt.Errorf("%w: record with id '%s' already exists", interfaces.ErrUniqueConstraint, id)
	}
	if err := r.validateUniqueConstraints(table, record, ""); err != nil {
		return nil, err
	}
	if err := r.validateForeignKeyConstraints(record); err != nil {
		return nil, err
	}

	table[id] = record
	return record, nil
}

// Update modifies an existing record by ID
func (r *Repository) Update(ctx context.Context, id interfaces.ID, data map[string]interface{}) (map[string]interface{}, error) {
	if err := r.builder.ValidatePartial(data); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.connected {
		return nil, interfaces.ErrDatabaseNotConnected
	}

	updated, err := r.updateLocked(id.String(), data)
	if err != nil {
		return nil, err
	}
	return query.Clone(updated), nil
}

func (r *Repository) updateLocked(id string, data map[string]interface{}) (map[string]interface{}, error) {
	table := r.table()
	existing, exists := table[id]
	if !exists {
		return nil, interfaces.ErrNotFound
	}

	updated := query.Clone(existing)
	for k, v := range r.builder.Normalize(query.Clone(data)) {
		if k == "id" || k == "created_at" {
			continue
		}
		updated[k] = v
	}
	updated["updated_at"] = time.Now().UTC()

	if err := r.validateUniqueConstraints(table, updated, id); err != nil {
		return nil, err
	}
	if err := r.validateForeignKeyConstraints(updated); err != nil {
		return nil, err
	}

	table[id] = updated
	return updated, nil
}

// UpdateWhere applies data to every matching record under one lock
func (r *Repository) UpdateWhere(ctx context.Context, where *interfaces.Filters, data map[string]interface{}) (int64, error) {
	if where.IsEmpty() {
		return 0, fmt.Errorf("%w: update without conditions", interfaces.ErrInvalidQuery)
	}
	if err := r.builder.ValidateFilters(where); err != nil {
		return 0, err
	}
	if err := r.builder.ValidatePartial(data); err != nil {
		return 0, fmt.Errorf("validation error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.connected {
		return 0, interfaces.ErrDatabaseNotConnected
	}

	var ids []string
	for id, record := range r.table() {
		if r.builder.MatchesFilters(record, where) {
			ids = append(ids, id)
		}
	}

	// stage every change first so a constraint failure leaves nothing applied
	table := r.table()
	staged := make(map[string]map[string]interface{}, len(ids))
	for _, id := range ids {
		staged[id] = table[id]
	}
	var changed int64
	for _, id := range ids {
		if _, err := r.updateLocked(id, data); err != nil {
			for sid, original := range staged {
				table[sid] = original
			}
			return 0, err
		}
		changed++
	}
	return changed, nil
}

// Upsert inserts or updates based on unique field constraints
func (r *Repository) Upsert(ctx context.Context, uniqueFields map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	if len(uniqueFields) == 0 {
		return nil, fmt.Errorf("%w: upsert without unique fields", interfaces.ErrInvalidQuery)
	}
	if err := r.builder.ValidatePartial(data); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	where := &interfaces.Filters{}
	for field, value := range uniqueFields {
		where.Conditions = append(where.Conditions, interfaces.Eq(field, value))
	}
	if err := r.builder.ValidateFilters(where); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.connected {
		return nil, interfaces.ErrDatabaseNotConnected
	}

	for id, record := range r.table() {
		if r.builder.MatchesFilters(record, where) {
			updated, err := r.updateLocked(id, data)
			if err != nil {
				return nil, err
			}
			return query.Clone(updated), nil
		}
	}

	createData := query.Clone(data)
	for k, v := range uniqueFields {
		createData[k] = v
	}
	if err := r.builder.ValidateData(createData); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	created, err := r.createLocked(createData)
	if err != nil {
		return nil, err
	}
	return query.Clone(created), nil
}

// SetExclusive raises flag on id and lowers it on the rest of scope
func (r *Repository) SetExclusive(ctx context.Context, scope *interfaces.Filters, id interfaces.ID, flag string, extra map[string]interface{}) (map[string]interface{}, error) {
	if fs, ok := r.schema.Fields[flag]; !ok || fs.Type != interfaces.TypeBool {
		return nil, fmt.Errorf("%w: '%s' is not a boolean field", interfaces.ErrInvalidQuery, flag)
	}
	if err := r.builder.ValidateFilters(scope); err != nil {
		return nil, err
	}
	if err := r.builder.ValidatePartial(extra); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.connected {
		return nil, interfaces.ErrDatabaseNotConnected
	}

	table := r.table()
	target, exists := table[id.String()]
	if !exists || !r.builder.MatchesFilters(target, scope) {
		return nil, interfaces.ErrNotFound
	}

	now := time.Now().UTC()
	for otherID, record := range table {
		if otherID == id.String() || record[flag] != true {
			continue
		}
		if r.builder.MatchesFilters(record, scope) {
			lowered := query.Clone(record)
			lowered[flag] = false
			lowered["updated_at"] = now
			table[otherID] = lowered
		}
	}

	data := query.Clone(extra)
	data[flag] = true
	updated, err := r.updateLocked(id.String(), data)
	if err != nil {
		return nil, err
	}
	return query.Clone(updated), nil
}

// Delete removes a record by ID, applying ON DELETE rules of referencing tables
func (r *Repository) Delete(ctx context.Context, id interfaces.ID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.connected {
		return interfaces.ErrDatabaseNotConnected
	}

	table := r.table()
	if _, exists := table[id.String()]; !exists {
		return interfaces.ErrNotFound
	}

	if err := r.db.applyDeleteRules(r.tableName, id.String()); err != nil {
		return err
	}

	delete(table, id.String())
	return nil
}

// Count returns the number of records matching the query
func (r *Repository) Count(ctx context.Context, q *interfaces.Query) (int64, error) {
	countQuery := &interfaces.Query{}
	if q != nil {
		countQuery.Where = q.Where
	}

	result, err := r.FindMany(ctx, countQuery)
	if err != nil {
		return 0, err
	}

	return result.Total, nil
}

// GetSchema returns the schema for this repository
func (r *Repository) GetSchema() *interfaces.Schema {
	return r.schema
}

// table returns the backing map, creating it on first write. Callers hold db.mu.
func (r *Repository) table() map[string]map[string]interface{} {
	table, exists := r.db.tables[r.tableName]
	if !exists {
		table = make(map[string]map[string]interface{})
		r.db.tables[r.tableName] = table
	}
	return table
}

func (r *Repository) validateUniqueConstraints(table map[string]map[string]interface{}, record map[string]interface{}, excludeID string) error {
	for fieldName, fieldSchema := range r.schema.Fields {
		if !fieldSchema.Unique || fieldName == "id" {
			continue
		}

		value := record[fieldName]
		if value == nil {
			continue
		}

		for id, existing := range table {
			if id == excludeID {
				continue
			}
			if query.Equal(existing[fieldName], value) {
				return fmt.Errorf("%w: field '%s' value '%v'", interfaces.ErrUniqueConstraint, fieldName, value)
			}
		}
	}

	for _, index := range r.schema.Indexes {
		if !index.Unique || !indexApplies(index, record) {
			continue
		}

		for id, existing := range table {
			if id == excludeID || !indexApplies(index, existing) {
				continue
			}
			if sameKey(index.Columns, record, existing) {
				return fmt.Errorf("%w: unique index '%s'", interfaces.ErrUniqueConstraint, index.Name)
			}
		}
	}

	return nil
}

// indexApplies reports whether record falls under a (possibly partial) index.
func indexApplies(index interfaces.Index, record map[string]interface{}) bool {
	for _, field := range index.Where {
		if record[field] != true {
			return false
		}
	}
	return true
}

// sameKey compares composite keys. NULL parts never collide.
func sameKey(columns []string, a, b map[string]interface{}) bool {
	for _, column := range columns {
		av, bv := a[column], b[column]
		if av == nil || bv == nil || !query.Equal(av, bv) {
			return false
		}
	}
	return true
}

func (r *Repository) validateForeignKeyConstraints(record map[string]interface{}) error {
	for fieldName, fieldSchema := range r.schema.Fields {
		if fieldSchema.ForeignKey == nil {
			continue
		}

		value := record[fieldName]
		if value == nil {
			continue
		}

		refTable, exists := r.db.tables[fieldSchema.ForeignKey.Table]
		if !exists {
			return fmt.Errorf("%w: referenced table '%s' does not exist", interfaces.ErrForeignKeyConstraint, fieldSchema.ForeignKey.Table)
		}

		found := false
		for _, refRecord := range refTable {
			if query.Equal(refRecord[fieldSchema.ForeignKey.Column], value) {
				found = true
				break
			}
		}

		if !found {
			return fmt.Errorf("%w: field '%s' references non-existent record '%v'", interfaces.ErrForeignKeyConstraint, fieldName, value)
		}
	}

	return nil
}
