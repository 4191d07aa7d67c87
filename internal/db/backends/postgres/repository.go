package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	"github.com/postmaster/postmaster-backend/internal/db/query"
)

// Repository implements interfaces.Repository for one table
type Repository struct {
	db      *Database
	schema  *interfaces.Schema
	builder *query.Builder
}

// NewRepository creates a repository bound to schema's table
func NewRepository(db *Database, schema *interfaces.Schema) *Repository {
	return &Repository{
		db:      db,
		schema:  schema,
		builder: query.NewBuilder(schema),
	}
}

// GetByID retrieves a single record by its ID
func (r *Repository) GetByID(ctx context.Context, id interfaces.ID) (map[string]interface{}, error) {
	sql, args, err := SqBuilder.Select("*").From(r.schema.TableName).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, sql, args)
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

	where, err := toSqlizer(q.Where)
	if err != nil {
		return nil, err
	}

	total, err := r.count(ctx, where)
	if err != nil {
		return nil, err
	}

	columns := []string{"*"}
	if len(q.Select) > 0 {
		columns = q.Select
	}

	stmt := SqBuilder.Select(columns...).From(r.schema.TableName)
	if where != nil {
		stmt = stmt.Where(where)
	}
	for _, order := range q.OrderBy {
		stmt = stmt.OrderBy(orderClause(order))
	}
	stmt = stmt.OrderBy("created_at ASC")

	offset := 0
	if q.Offset != nil && *q.Offset > 0 {
		offset = *q.Offset
		stmt = stmt.Offset(uint64(offset))
	}
	pageSize := int(total) - offset
	if q.Limit != nil && *q.Limit >= 0 {
		pageSize = *q.Limit
		stmt = stmt.Limit(uint64(*q.Limit))
	}

	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, err
	}

	records, err := r.queryAll(ctx, sql, args)
	if err != nil {
		return nil, err
	}

	page := 1
	if pageSize > 0 {
		page = offset/pageSize + 1
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

	record := r.prepareInsert(data)
	sql, args, err := SqBuilder.Insert(r.schema.TableName).
		SetMap(record).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, sql, args)
}

// Update modifies an existing record by ID
func (r *Repository) Update(ctx context.Context, id interfaces.ID, data map[string]interface{}) (map[string]interface{}, error) {
	if err := r.builder.ValidatePartial(data); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	sql, args, err := SqBuilder.Update(r.schema.TableName).
		SetMap(r.prepareUpdate(data)).
		Where(sq.Eq{"id": id.String()}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, sql, args)
}

// UpdateWhere applies data to every matching row in one statement
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

	cond, err := toSqlizer(where)
	if err != nil {
		return 0, err
	}

	sql, args, err := SqBuilder.Update(r.schema.TableName).
		SetMap(r.prepareUpdate(data)).
		Where(cond).
		ToSql()
	if err != nil {
		return 0, err
	}

	q, err := r.db.querier(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// Upsert inserts or, on conflict over the unique fields, updates with data
func (r *Repository) Upsert(ctx context.Context, uniqueFields map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	if len(uniqueFields) == 0 {
		return nil, fmt.Errorf("%w: upsert without unique fields", interfaces.ErrInvalidQuery)
	}
	if err := r.builder.ValidatePartial(data); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	createData := query.Clone(data)
	conflict := make([]string, 0, len(uniqueFields))
	for field, value := range uniqueFields {
		if !r.schema.HasField(field) {
			return nil, fmt.Errorf("%w: unknown unique field '%s'", interfaces.ErrInvalidQuery, field)
		}
		createData[field] = value
		conflict = append(conflict, field)
	}
	sort.Strings(conflict)

	if err := r.builder.ValidateData(createData); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	updates := make([]string, 0, len(data)+1)
	for field := range data {
		if field == "id" || field == "created_at" || field == "updated_at" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	sort.Strings(updates)
	updates = append(updates, "updated_at = EXCLUDED.updated_at")

	sql, args, err := SqBuilder.Insert(r.schema.TableName).
		SetMap(r.prepareInsert(createData)).
		Suffix(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
			strings.Join(conflict, ", "), strings.Join(updates, ", "))).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, sql, args)
}

// SetExclusive locks the scope, lowers flag on the others and raises it on id
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

	cond, err := toSqlizer(scope)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		cond = sq.Expr("TRUE")
	}

	var result map[string]interface{}
	err = r.db.Transaction(ctx, func(ctx context.Context, _ interfaces.Transaction) error {
		q, err := r.db.querier(ctx)
		if err != nil {
			return err
		}

		// lock the whole scope in id order so concurrent calls serialize
		lockSQL, lockArgs, err := SqBuilder.Select("id").From(r.schema.TableName).
			Where(cond).OrderBy("id").Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		rows, err := q.Query(ctx, lockSQL, lockArgs...)
		if err != nil {
			return mapError(err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return mapError(err)
		}
		found := false
		for _, rowID := range ids {
			if rowID == id.String() {
				found = true
				break
			}
		}
		if !found {
			return interfaces.ErrNotFound
		}

		now := time.Now().UTC()
		lowerSQL, lowerArgs, err := SqBuilder.Update(r.schema.TableName).
			Set(flag, false).
			Set("updated_at", now).
			Where(cond).
			Where(sq.NotEq{"id": id.String()}).
			Where(sq.Eq{flag: true}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, lowerSQL, lowerArgs...); err != nil {
			return mapError(err)
		}

		data := query.Clone(extra)
		data[flag] = true
		raiseSQL, raiseArgs, err := SqBuilder.Update(r.schema.TableName).
			SetMap(r.prepareUpdate(data)).
			Where(sq.Eq{"id": id.String()}).
			Suffix("RETURNING *").
			ToSql()
		if err != nil {
			return err
		}
		result, err = r.queryOne(ctx, raiseSQL, raiseArgs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a record by ID
func (r *Repository) Delete(ctx context.Context, id interfaces.ID) error {
	sql, args, err := SqBuilder.Delete(r.schema.TableName).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return err
	}

	q, err := r.db.querier(ctx)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// Count returns the number of records matching the query
func (r *Repository) Count(ctx context.Context, q *interfaces.Query) (int64, error) {
	var filters *interfaces.Filters
	if q != nil {
		filters = q.Where
	}
	if err := r.builder.ValidateFilters(filters); err != nil {
		return 0, err
	}
	where, err := toSqlizer(filters)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, where)
}

// GetSchema returns the schema for this repository
func (r *Repository) GetSchema() *interfaces.Schema {
	return r.schema
}

func (r *Repository) count(ctx context.Context, where sq.Sqlizer) (int64, error) {
	stmt := SqBuilder.Select("COUNT(*)").From(r.schema.TableName)
	if where != nil {
		stmt = stmt.Where(where)
	}
	sql, args, err := stmt.ToSql()
	if err != nil {
		return 0, err
	}

	q, err := r.db.querier(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (r *Repository) queryAll(ctx context.Context, sql string, args []interface{}) ([]map[string]interface{}, error) {
	q, err := r.db.querier(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		out = append(out, r.builder.Normalize(record))
	}
	return out, nil
}

func (r *Repository) queryOne(ctx context.Context, sql string, args []interface{}) (map[string]interface{}, error) {
	records, err := r.queryAll(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return records[0], nil
}

func (r *Repository) prepareInsert(data map[string]interface{}) map[string]interface{} {
	record := r.builder.Normalize(query.Clone(data))
	if id, exists := record["id"]; !exists || id == nil || id == "" {
		record["id"] = uuid.NewString()
	}
	now := time.Now().UTC()
	if _, exists := record["created_at"]; !exists {
		record["created_at"] = now
	}
	record["updated_at"] = now
	for field, fs := range r.schema.Fields {
		if _, exists := record[field]; !exists && fs.DefaultValue != nil {
			record[field] = fs.DefaultValue
		}
	}
	return record
}

func (r *Repository) prepareUpdate(data map[string]interface{}) map[string]interface{} {
	record := r.builder.Normalize(query.Clone(data))
	delete(record, "id")
	delete(record, "created_at")
	record["updated_at"] = time.Now().UTC()
	return record
}

func orderClause(order interfaces.OrderBy) string {
	if strings.EqualFold(order.Direction, "desc") {
		return order.Field + " DESC"
	}
	return order.Field + " ASC"
}

// toSqlizer renders filters as a squirrel condition. Field names have
// already been checked against the schema. Returns nil for empty filters.
func toSqlizer(filters *interfaces.Filters) (sq.Sqlizer, error) {
	if filters.IsEmpty() {
		return nil, nil
	}

	and := sq.And{}
	for _, c := range filters.Conditions {
		cond, err := conditionSqlizer(c)
		if err != nil {
			return nil, err
		}
		and = append(and, cond)
	}
	for _, sub := range filters.AND {
		cond, err := toSqlizer(sub)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			and = append(and, cond)
		}
	}
	if len(filters.OR) > 0 {
		or := sq.Or{}
		for _, sub := range filters.OR {
			cond, err := toSqlizer(sub)
			if err != nil {
				return nil, err
			}
			if cond == nil {
				cond = sq.Expr("TRUE")
			}
			or = append(or, cond)
		}
		and = append(and, or)
	}
	return and, nil
}

func conditionSqlizer(c interfaces.Filter) (sq.Sqlizer, error) {
	field := c.Field
	if c.Operator == nil {
		return sq.Eq{field: c.Value}, nil
	}

	op := c.Operator
	switch {
	case op.IsNull:
		return sq.Eq{field: nil}, nil
	case op.IsNotNull:
		return sq.NotEq{field: nil}, nil
	case op.Eq != nil:
		return sq.Eq{field: op.Eq}, nil
	case op.Ne != nil:
		// NULL never satisfies a comparison, matching the memory backend
		return sq.And{sq.NotEq{field: nil}, sq.NotEq{field: op.Ne}}, nil
	case op.Gt != nil:
		return sq.Gt{field: op.Gt}, nil
	case op.Gte != nil:
		return sq.GtOrEq{field: op.Gte}, nil
	case op.Lt != nil:
		return sq.Lt{field: op.Lt}, nil
	case op.Lte != nil:
		return sq.LtOrEq{field: op.Lte}, nil
	case len(op.In) > 0:
		return sq.Eq{field: op.In}, nil
	case len(op.NotIn) > 0:
		return sq.And{sq.NotEq{field: nil}, sq.NotEq{field: op.NotIn}}, nil
	case op.Like != "":
		if op.CaseSensitive != nil && !*op.CaseSensitive {
			return sq.ILike{field: likePattern(op.Like)}, nil
		}
		return sq.Like{field: likePattern(op.Like)}, nil
	case op.NotLike != "":
		if op.CaseSensitive != nil && !*op.CaseSensitive {
			return sq.NotILike{field: likePattern(op.NotLike)}, nil
		}
		return sq.NotLike{field: likePattern(op.NotLike)}, nil
	}
	return sq.Expr("TRUE"), nil
}

// likePattern gives LIKE the substring semantics of the memory backend.
func likePattern(pattern string) string {
	return "%" + strings.ReplaceAll(pattern, "%", "") + "%"
}
