package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

var testSchema = &interfaces.Schema{
	TableName: "items",
	Fields: map[string]interfaces.FieldSchema{
		"id":         {Type: interfaces.TypeString, PrimaryKey: true},
		"name":       {Type: interfaces.TypeString},
		"count":      {Type: interfaces.TypeInt64, DefaultValue: int64(0)},
		"rate":       {Type: interfaces.TypeFloat64, Nullable: true},
		"tags":       {Type: interfaces.TypeStringArray, Nullable: true},
		"active":     {Type: interfaces.TypeBool, DefaultValue: true},
		"due_at":     {Type: interfaces.TypeTime, Nullable: true},
		"meta":       {Type: interfaces.TypeJSON, Nullable: true},
		"created_at": {Type: interfaces.TypeTime},
		"updated_at": {Type: interfaces.TypeTime},
	},
}

func TestCompare(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		a, b   interface{}
		want   int
		wantOK bool
	}{
		{"int vs int64", 3, int64(5), -1, true},
		{"float vs int", 2.5, 2, 1, true},
		{"strings", "b", "a", 1, true},
		{"times", now, now.Add(time.Second), -1, true},
		{"bools", true, false, 1, true},
		{"mixed kinds", "1", 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqualHandlesSlices(t *testing.T) {
	assert.True(t, Equal([]string{"a"}, []string{"a"}))
	assert.False(t, Equal([]string{"a"}, "a"))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, "x"))
	assert.True(t, Equal(int64(4), 4))
}

func TestMatchesFilters(t *testing.T) {
	b := NewBuilder(testSchema)
	now := time.Now()
	record := map[string]interface{}{
		"name":   "alpha",
		"count":  int64(3),
		"active": true,
		"due_at": now,
		"rate":   nil,
	}

	tests := []struct {
		name    string
		filters *interfaces.Filters
		want    bool
	}{
		{"nil filters", nil, true},
		{"equality", interfaces.Where(interfaces.Eq("name", "alpha")), true},
		{"null equality", interfaces.Where(interfaces.Eq("rate", nil)), true},
		{"lte time", interfaces.Where(interfaces.Op("due_at", interfaces.FilterOperator{Lte: now})), true},
		{"gt time", interfaces.Where(interfaces.Op("due_at", interfaces.FilterOperator{Gt: now})), false},
		{"null never compares", interfaces.Where(interfaces.Op("rate", interfaces.FilterOperator{Ne: 1.0})), false},
		{"in", interfaces.Where(interfaces.Op("count", interfaces.FilterOperator{In: []interface{}{1, 3}})), true},
		{"not in", interfaces.Where(interfaces.Op("name", interfaces.FilterOperator{NotIn: []interface{}{"alpha"}})), false},
		{"like", interfaces.Where(interfaces.Op("name", interfaces.FilterOperator{Like: "%lph%"})), true},
		{"or", &interfaces.Filters{OR: []*interfaces.Filters{
			interfaces.Where(interfaces.Eq("name", "beta")),
			interfaces.Where(interfaces.Eq("active", true)),
		}}, true},
		{"and", &interfaces.Filters{AND: []*interfaces.Filters{
			interfaces.Where(interfaces.Eq("name", "alpha")),
			interfaces.Where(interfaces.Eq("active", false)),
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.MatchesFilters(record, tt.filters))
		})
	}
}

func TestApplySortNullsAndStability(t *testing.T) {
	b := NewBuilder(testSchema)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []map[string]interface{}{
		{"name": "n", "due_at": nil},
		{"name": "late", "due_at": t0.Add(2 * time.Hour)},
		{"name": "early", "due_at": t0},
		{"name": "early-2", "due_at": t0},
	}

	asc := b.ApplySort(records, []interfaces.OrderBy{{Field: "due_at", Direction: "asc"}})
	assert.Equal(t, []interface{}{"early", "early-2", "late", "n"}, names(asc))

	desc := b.ApplySort(records, []interfaces.OrderBy{{Field: "due_at", Direction: "desc"}})
	assert.Equal(t, []interface{}{"n", "late", "early", "early-2"}, names(desc))

	assert.Equal(t, "n", records[0]["name"], "input is not reordered")
}

func names(records []map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, r["name"])
	}
	return out
}

func TestApplyPagination(t *testing.T) {
	b := NewBuilder(testSchema)
	records := []map[string]interface{}{{"name": "a"}, {"name": "b"}, {"name": "c"}}
	limit, offset, beyond := 2, 1, 5

	assert.Len(t, b.ApplyPagination(records, &limit, nil), 2)
	assert.Equal(t, "b", b.ApplyPagination(records, &limit, &offset)[0]["name"])
	assert.Empty(t, b.ApplyPagination(records, nil, &beyond))
}

func TestValidateData(t *testing.T) {
	b := NewBuilder(testSchema)

	require.NoError(t, b.ValidateData(map[string]interface{}{"name": "x", "tags": []string{"a"}, "meta": map[string]interface{}{"k": 1}}))
	assert.Error(t, b.ValidateData(map[string]interface{}{}), "name is required")
	assert.Error(t, b.ValidateData(map[string]interface{}{"name": 1}))
	assert.Error(t, b.ValidateData(map[string]interface{}{"name": "x", "bogus": 1}))
	assert.Error(t, b.ValidatePartial(map[string]interface{}{"name": nil}))
	assert.NoError(t, b.ValidatePartial(map[string]interface{}{"due_at": nil}))
	assert.Error(t, b.ValidatePartial(map[string]interface{}{"tags": "a"}))
}

func TestNormalize(t *testing.T) {
	b := NewBuilder(testSchema)
	local := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	got := b.Normalize(map[string]interface{}{
		"count":  int32(7),
		"rate":   float32(0.5),
		"tags":   []interface{}{"a", "b"},
		"due_at": local,
	})

	assert.Equal(t, int64(7), got["count"])
	assert.Equal(t, 0.5, got["rate"])
	assert.Equal(t, []string{"a", "b"}, got["tags"])
	assert.Equal(t, time.UTC, got["due_at"].(time.Time).Location())
}

func TestValidateQuery(t *testing.T) {
	b := NewBuilder(testSchema)
	assert.NoError(t, b.ValidateQuery(&interfaces.Query{OrderBy: []interfaces.OrderBy{{Field: "name"}}}))
	assert.ErrorIs(t, b.ValidateQuery(&interfaces.Query{OrderBy: []interfaces.OrderBy{{Field: "name; DROP"}}}), interfaces.ErrInvalidQuery)
	assert.ErrorIs(t, b.ValidateQuery(&interfaces.Query{Where: &interfaces.Filters{OR: []*interfaces.Filters{
		interfaces.Where(interfaces.Eq("nope", 1)),
	}}}), interfaces.ErrInvalidQuery)
}
