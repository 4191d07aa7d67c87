package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

// Builder helps construct database queries
type Builder struct {
	schema *interfaces.Schema
}

// NewBuilder creates a new query builder for a schema
func NewBuilder(schema *interfaces.Schema) *Builder {
	return &Builder{schema: schema}
}

// MatchesFilters checks if a record matches the given filters
func (b *Builder) MatchesFilters(record map[string]interface{}, filters *interfaces.Filters) bool {
	if filters == nil {
		return true
	}

	for _, andFilter := range filters.AND {
		if !b.MatchesFilters(record, andFilter) {
			return false
		}
	}

	if len(filters.OR) > 0 {
		hasMatch := false
		for _, orFilter := range filters.OR {
			if b.MatchesFilters(record, orFilter) {
				hasMatch = true
				break
			}
		}
		if !hasMatch {
			return false
		}
	}

	for _, condition := range filters.Conditions {
		if !b.matchesCondition(record, condition) {
			return false
		}
	}

	return true
}

func (b *Builder) matchesCondition(record map[string]interface{}, condition interfaces.Filter) bool {
	fieldValue, exists := record[condition.Field]

	if condition.Operator == nil {
		if condition.Value == nil {
			return !exists || fieldValue == nil
		}
		return Equal(fieldValue, condition.Value)
	}

	op := condition.Operator

	if op.IsNull {
		return !exists || fieldValue == nil
	}
	if op.IsNotNull {
		return exists && fieldValue != nil
	}

	// SQL semantics: NULL never satisfies a comparison
	if !exists || fieldValue == nil {
		return false
	}

	if op.Eq != nil {
		return Equal(fieldValue, op.Eq)
	}
	if op.Ne != nil {
		return !Equal(fieldValue, op.Ne)
	}

	if op.Gt != nil {
		cmp, ok := Compare(fieldValue, op.Gt)
		return ok && cmp > 0
	}
	if op.Gte != nil {
		cmp, ok := Compare(fieldValue, op.Gte)
		return ok && cmp >= 0
	}
	if op.Lt != nil {
		cmp, ok := Compare(fieldValue, op.Lt)
		return ok && cmp < 0
	}
	if op.Lte != nil {
		cmp, ok := Compare(fieldValue, op.Lte)
		return ok && cmp <= 0
	}

	if len(op.In) > 0 {
		for _, val := range op.In {
			if Equal(fieldValue, val) {
				return true
			}
		}
		return false
	}
	if len(op.NotIn) > 0 {
		for _, val := range op.NotIn {
			if Equal(fieldValue, val) {
				return false
			}
		}
		return true
	}

	if op.Like != "" {
		strValue, ok := fieldValue.(string)
		if !ok {
			return false
		}
		return containsPattern(strValue, op.Like, op.CaseSensitive)
	}
	if op.NotLike != "" {
		strValue, ok := fieldValue.(string)
		if !ok {
			return true
		}
		return !containsPattern(strValue, op.NotLike, op.CaseSensitive)
	}

	return true
}

func containsPattern(value, pattern string, caseSensitive *bool) bool {
	pattern = strings.ReplaceAll(pattern, "%", "")
	if caseSensitive != nil && !*caseSensitive {
		value = strings.ToLower(value)
		pattern = strings.ToLower(pattern)
	}
	return strings.Contains(value, pattern)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Compare orders two values of the same kind. Numbers of any width compare
// numerically. ok is false when the values are not comparable.
func Compare(a, other interface{}) (cmp int, ok bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(other)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		if bv, ok := other.(string); ok {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, ok := other.(time.Time); ok {
			return av.Compare(bv), true
		}
	case bool:
		if bv, ok := other.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

// Equal reports value equality without panicking on uncomparable types.
func Equal(a, other interface{}) bool {
	if a == nil || other == nil {
		return a == nil && other == nil
	}
	if cmp, ok := Compare(a, other); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, other)
}

// ApplySort sorts records according to the OrderBy specification. NULLs sort
// last ascending and first descending.
func (b *Builder) ApplySort(records []map[string]interface{}, orderBy []interfaces.OrderBy) []map[string]interface{} {
	if len(orderBy) == 0 {
		return records
	}

	sorted := make([]map[string]interface{}, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j], orderBy)
	})

	return sorted
}

func less(a, other map[string]interface{}, orderBy []interfaces.OrderBy) bool {
	for _, order := range orderBy {
		desc := strings.EqualFold(order.Direction, "desc")
		aVal := a[order.Field]
		bVal := other[order.Field]

		switch {
		case aVal == nil && bVal == nil:
			continue
		case aVal == nil:
			return desc
		case bVal == nil:
			return !desc
		}

		cmp, _ := Compare(aVal, bVal)
		if cmp == 0 {
			continue
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// ApplyPagination applies limit and offset to the records
func (b *Builder) ApplyPagination(records []map[string]interface{}, limit, offset *int) []map[string]interface{} {
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}

	if start >= len(records) {
		return []map[string]interface{}{}
	}

	end := len(records)
	if limit != nil && *limit >= 0 {
		end = start + *limit
		if end > len(records) {
			end = len(records)
		}
	}

	return records[start:end]
}

// ValidateQuery rejects filters and orderings on undeclared columns.
func (b *Builder) ValidateQuery(q *interfaces.Query) error {
	if q == nil {
		return nil
	}
	if err := b.ValidateFilters(q.Where); err != nil {
		return err
	}
	for _, order := range q.OrderBy {
		if !b.schema.HasField(order.Field) {
			return fmt.Errorf("%w: unknown order field '%s'", interfaces.ErrInvalidQuery, order.Field)
		}
	}
	for _, field := range q.Select {
		if !b.schema.HasField(field) {
			return fmt.Errorf("%w: unknown select field '%s'", interfaces.ErrInvalidQuery, field)
		}
	}
	return nil
}

// ValidateFilters rejects conditions on undeclared columns.
func (b *Builder) ValidateFilters(filters *interfaces.Filters) error {
	if filters == nil {
		return nil
	}
	for _, c := range filters.Conditions {
		if !b.schema.HasField(c.Field) {
			return fmt.Errorf("%w: unknown filter field '%s'", interfaces.ErrInvalidQuery, c.Field)
		}
	}
	for _, sub := range filters.AND {
		if err := b.ValidateFilters(sub); err != nil {
			return err
		}
	}
	for _, sub := range filters.OR {
		if err := b.ValidateFilters(sub); err != nil {
			return err
		}
	}
	return nil
}

// ValidateData validates a full record against the schema
func (b *Builder) ValidateData(data map[string]interface{}) error {
	if err := b.ValidatePartial(data); err != nil {
		return err
	}

	for fieldName, fieldSchema := range b.schema.Fields {
		if isSystemField(fieldName) {
			continue
		}
		if _, exists := data[fieldName]; !exists && !fieldSchema.Nullable && fieldSchema.DefaultValue == nil {
			return fmt.Errorf("field '%s' is required", fieldName)
		}
	}

	return nil
}

// ValidatePartial validates the fields present in an update
func (b *Builder) ValidatePartial(data map[string]interface{}) error {
	for fieldName, value := range data {
		fieldSchema, ok := b.schema.Fields[fieldName]
		if !ok {
			return fmt.Errorf("unknown field '%s'", fieldName)
		}
		if value == nil {
			if !fieldSchema.Nullable && !isSystemField(fieldName) {
				return fmt.Errorf("field '%s' cannot be null", fieldName)
			}
			continue
		}
		if err := validateFieldType(fieldName, value, fieldSchema.Type); err != nil {
			return err
		}
	}
	return nil
}

func isSystemField(name string) bool {
	return name == "id" || name == "created_at" || name == "updated_at"
}

func validateFieldType(fieldName string, value interface{}, expectedType string) error {
	switch expectedType {
	case interfaces.TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string", fieldName)
		}
	case interfaces.TypeStringArray:
		switch value.(type) {
		case []string, []interface{}:
		default:
			return fmt.Errorf("field '%s' must be a string array", fieldName)
		}
	case interfaces.TypeInt, interfaces.TypeInt64:
		switch value.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("field '%s' must be an integer", fieldName)
		}
	case interfaces.TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean", fieldName)
		}
	case interfaces.TypeFloat64:
		switch value.(type) {
		case float32, float64, int, int64:
		default:
			return fmt.Errorf("field '%s' must be a float64", fieldName)
		}
	case interfaces.TypeTime:
		switch value.(type) {
		case string, time.Time:
		default:
			return fmt.Errorf("field '%s' must be a time value", fieldName)
		}
	case interfaces.TypeJSON:
		switch value.(type) {
		case map[string]interface{}, []interface{}:
		default:
			return fmt.Errorf("field '%s' must be a JSON object or array", fieldName)
		}
	}

	return nil
}

// Normalize converts driver- or caller-specific representations to the
// canonical Go type of each column: int64 for integers, float64 for floats,
// []string for string arrays and UTC time.Time for timestamps.
func (b *Builder) Normalize(record map[string]interface{}) map[string]interface{} {
	for field, value := range record {
		if value == nil {
			continue
		}
		fieldSchema, ok := b.schema.Fields[field]
		if !ok {
			continue
		}
		switch fieldSchema.Type {
		case interfaces.TypeInt, interfaces.TypeInt64:
			switch n := value.(type) {
			case int:
				record[field] = int64(n)
			case int32:
				record[field] = int64(n)
			}
		case interfaces.TypeFloat64:
			if f, ok := toFloat(value); ok {
				record[field] = f
			}
		case interfaces.TypeStringArray:
			switch arr := value.(type) {
			case []string:
				record[field] = append([]string{}, arr...)
			case []interface{}:
				out := make([]string, 0, len(arr))
				for _, item := range arr {
					if s, ok := item.(string); ok {
						out = append(out, s)
					}
				}
				record[field] = out
			}
		case interfaces.TypeTime:
			switch t := value.(type) {
			case time.Time:
				record[field] = t.UTC()
			case string:
				if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
					record[field] = parsed.UTC()
				}
			}
		}
	}
	return record
}

// Clone copies a record so callers cannot alias stored slices or maps.
func Clone(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string{}, vv...)
		case map[string]interface{}:
			out[k] = Clone(vv)
		default:
			out[k] = v
		}
	}
	return out
}
