// Package dbtest holds behavior tests every db backend must pass.
package dbtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
)

// Run exercises db, which must already be connected and migrated.
func Run(t *testing.T, db interfaces.Database) {
	ctx := context.Background()

	posts := db.Repository(entities.PostSchema)
	accounts := db.Repository(entities.LinkedInAccountSchema)
	analytics := db.Repository(entities.PostAnalyticsSchema)

	t.Run("CRUD Operations", func(t *testing.T) {
		testCRUDOperations(t, ctx, posts)
	})
	t.Run("Query Operations", func(t *testing.T) {
		testQueryOperations(t, ctx, posts)
	})
	t.Run("Constraint Validation", func(t *testing.T) {
		testConstraintValidation(t, ctx, accounts, posts)
	})
	t.Run("Conditional Update", func(t *testing.T) {
		testUpdateWhere(t, ctx, posts)
	})
	t.Run("Exclusive Flag", func(t *testing.T) {
		testSetExclusive(t, ctx, accounts)
	})
	t.Run("Upsert", func(t *testing.T) {
		testUpsert(t, ctx, accounts)
	})
	t.Run("Delete Rules", func(t *testing.T) {
		testDeleteRules(t, ctx, accounts, posts, analytics)
	})
	t.Run("Transactions", func(t *testing.T) {
		testTransactions(t, ctx, db, posts)
	})
}

func newPost(owner string, fields map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"user_id": owner,
		"title":   "A post",
		"content": "Body",
	}
	for k, v := range fields {
		data[k] = v
	}
	return data
}

func newAccount(owner, linkedinID string, fields map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"user_id":               owner,
		"linkedin_id":           linkedinID,
		"linkedin_access_token": "token-" + linkedinID,
		"display_name":          "Account " + linkedinID,
	}
	for k, v := range fields {
		data[k] = v
	}
	return data
}

func testCRUDOperations(t *testing.T, ctx context.Context, repo interfaces.Repository) {
	owner := uuid.NewString()

	created, err := repo.Create(ctx, newPost(owner, map[string]interface{}{
		"images":   []string{"https://cdn.example/a.png", "https://cdn.example/b.png"},
		"hashtags": []string{"Go", "Backend"},
	}))
	require.NoError(t, err)

	id, ok := created["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	assert.Equal(t, "draft", created["status"])
	assert.Nil(t, created["scheduled_at"])
	assert.IsType(t, time.Time{}, created["created_at"])

	retrieved, err := repo.GetByID(ctx, interfaces.StringID(id))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example/a.png", "https://cdn.example/b.png"}, retrieved["images"])
	assert.Equal(t, []string{"Go", "Backend"}, retrieved["hashtags"])

	scheduled := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	updated, err := repo.Update(ctx, interfaces.StringID(id), map[string]interface{}{
		"title":        "Updated",
		"status":       "scheduled",
		"scheduled_at": scheduled,
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated["title"])
	assert.Equal(t, "scheduled", updated["status"])
	assert.True(t, scheduled.Equal(updated["scheduled_at"].(time.Time)))

	_, err = repo.Update(ctx, interfaces.StringID(uuid.NewString()), map[string]interface{}{"title": "x"})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, interfaces.StringID(id)))
	_, err = repo.GetByID(ctx, interfaces.StringID(id))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, interfaces.StringID(id)), interfaces.ErrNotFound)
}

func testQueryOperations(t *testing.T, ctx context.Context, repo interfaces.Repository) {
	owner := uuid.NewString()
	now := time.Now().UTC()

	rows := []map[string]interface{}{
		newPost(owner, map[string]interface{}{"title": "due-1", "status": "scheduled", "scheduled_at": now.Add(-2 * time.Hour), "created_at": now.Add(-3 * time.Hour)}),
		newPost(owner, map[string]interface{}{"title": "due-2", "status": "scheduled", "scheduled_at": now.Add(-time.Hour), "created_at": now.Add(-2 * time.Hour)}),
		newPost(owner, map[string]interface{}{"title": "future", "status": "scheduled", "scheduled_at": now.Add(time.Hour), "created_at": now.Add(-time.Hour)}),
		newPost(owner, map[string]interface{}{"title": "draft", "created_at": now}),
	}
	for _, row := range rows {
		_, err := repo.Create(ctx, row)
		require.NoError(t, err)
	}

	due, err := repo.FindMany(ctx, &interfaces.Query{
		Where: interfaces.Where(
			interfaces.Eq("user_id", owner),
			interfaces.Eq("status", "scheduled"),
			interfaces.Op("scheduled_at", interfaces.FilterOperator{Lte: now}),
		),
		OrderBy: []interfaces.OrderBy{{Field: "scheduled_at", Direction: "asc"}},
	})
	require.NoError(t, err)
	require.Len(t, due.Data, 2)
	assert.Equal(t, "due-1", due.Data[0]["title"])
	assert.Equal(t, "due-2", due.Data[1]["title"])

	limit := 2
	newest, err := repo.FindMany(ctx, &interfaces.Query{
		Where:   interfaces.Where(interfaces.Eq("user_id", owner)),
		OrderBy: []interfaces.OrderBy{{Field: "created_at", Direction: "desc"}},
		Limit:   &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), newest.Total)
	require.Len(t, newest.Data, 2)
	assert.Equal(t, "draft", newest.Data[0]["title"])
	assert.Equal(t, "future", newest.Data[1]["title"])

	count, err := repo.Count(ctx, &interfaces.Query{
		Where: interfaces.Where(
			interfaces.Eq("user_id", owner),
			interfaces.Op("status", interfaces.FilterOperator{In: []interface{}{"draft", "failed"}}),
		),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	nulls, err := repo.Count(ctx, &interfaces.Query{
		Where: interfaces.Where(interfaces.Eq("user_id", owner), interfaces.Eq("scheduled_at", nil)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), nulls)

	_, err = repo.FindMany(ctx, &interfaces.Query{Where: interfaces.Where(interfaces.Eq("no_such_column", 1))})
	assert.ErrorIs(t, err, interfaces.ErrInvalidQuery)
}

func testConstraintValidation(t *testing.T, ctx context.Context, accounts, posts interfaces.Repository) {
	owner := uuid.NewString()

	first, err := accounts.Create(ctx, newAccount(owner, "li-1", map[string]interface{}{"is_primary": true}))
	require.NoError(t, err)
	assert.Equal(t, true, first["is_active"])

	_, err = accounts.Create(ctx, newAccount(owner, "li-1", nil))
	assert.ErrorIs(t, err, interfaces.ErrUniqueConstraint, "same provider id for the same owner")

	_, err = accounts.Create(ctx, newAccount(uuid.NewString(), "li-1", nil))
	assert.NoError(t, err, "same provider id for another owner")

	_, err = accounts.Create(ctx, newAccount(owner, "li-2", map[string]interface{}{"is_primary": true}))
	assert.ErrorIs(t, err, interfaces.ErrUniqueConstraint, "second active primary")

	_, err = accounts.Create(ctx, newAccount(owner, "li-3", map[string]interface{}{"is_primary": true, "is_active": false}))
	assert.NoError(t, err, "inactive primary is outside the partial index")

	_, err = posts.Create(ctx, newPost(owner, map[string]interface{}{"linkedin_account_id": first["id"]}))
	assert.NoError(t, err)

	_, err = posts.Create(ctx, newPost(owner, map[string]interface{}{"linkedin_account_id": uuid.NewString()}))
	assert.ErrorIs(t, err, interfaces.ErrForeignKeyConstraint)
}

func testUpdateWhere(t *testing.T, ctx context.Context, posts interfaces.Repository) {
	owner := uuid.NewString()
	created, err := posts.Create(ctx, newPost(owner, map[string]interface{}{"status": "scheduled", "scheduled_at": time.Now().UTC()}))
	require.NoError(t, err)
	id := created["id"].(string)

	claim := func() (int64, error) {
		return posts.UpdateWhere(ctx,
			interfaces.Where(interfaces.Eq("id", id), interfaces.Eq("status", "scheduled")),
			map[string]interface{}{"status": "publishing"},
		)
	}

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int64
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := claim()
			assert.NoError(t, err)
			mu.Lock()
			winners += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), winners, "exactly one claim succeeds")

	got, err := posts.GetByID(ctx, interfaces.StringID(id))
	require.NoError(t, err)
	assert.Equal(t, "publishing", got["status"])

	_, err = posts.UpdateWhere(ctx, nil, map[string]interface{}{"status": "failed"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidQuery)
}

func testSetExclusive(t *testing.T, ctx context.Context, accounts interfaces.Repository) {
	owner := uuid.NewString()
	a, err := accounts.Create(ctx, newAccount(owner, "x-a", map[string]interface{}{"is_primary": true}))
	require.NoError(t, err)
	b, err := accounts.Create(ctx, newAccount(owner, "x-b", nil))
	require.NoError(t, err)
	other, err := accounts.Create(ctx, newAccount(uuid.NewString(), "x-c", map[string]interface{}{"is_primary": true}))
	require.NoError(t, err)

	scope := interfaces.Where(interfaces.Eq("user_id", owner), interfaces.Eq("is_active", true))
	touched := time.Now().UTC().Truncate(time.Second)
	raised, err := accounts.SetExclusive(ctx, scope, interfaces.StringID(b["id"].(string)), "is_primary",
		map[string]interface{}{"last_used_at": touched})
	require.NoError(t, err)
	assert.Equal(t, true, raised["is_primary"])
	assert.True(t, touched.Equal(raised["last_used_at"].(time.Time)))

	gotA, err := accounts.GetByID(ctx, interfaces.StringID(a["id"].(string)))
	require.NoError(t, err)
	assert.Equal(t, false, gotA["is_primary"])

	gotOther, err := accounts.GetByID(ctx, interfaces.StringID(other["id"].(string)))
	require.NoError(t, err)
	assert.Equal(t, true, gotOther["is_primary"], "other owners are outside the scope")

	_, err = accounts.SetExclusive(ctx, scope, interfaces.StringID(other["id"].(string)), "is_primary", nil)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	primaries, err := accounts.Count(ctx, &interfaces.Query{Where: interfaces.Where(
		interfaces.Eq("user_id", owner), interfaces.Eq("is_primary", true),
	)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), primaries)
}

func testUpsert(t *testing.T, ctx context.Context, accounts interfaces.Repository) {
	owner := uuid.NewString()
	key := map[string]interface{}{"user_id": owner, "linkedin_id": "up-1"}

	first, err := accounts.Upsert(ctx, key, map[string]interface{}{
		"linkedin_access_token": "t1",
		"display_name":          "First",
		"is_primary":            true,
	})
	require.NoError(t, err)

	second, err := accounts.Upsert(ctx, key, map[string]interface{}{
		"linkedin_access_token": "t2",
		"display_name":          "Second",
	})
	require.NoError(t, err)

	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, "t2", second["linkedin_access_token"])
	assert.Equal(t, "Second", second["display_name"])
	assert.Equal(t, true, second["is_primary"], "fields absent from the update are kept")

	count, err := accounts.Count(ctx, &interfaces.Query{Where: interfaces.Where(interfaces.Eq("user_id", owner))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func testDeleteRules(t *testing.T, ctx context.Context, accounts, posts, analytics interfaces.Repository) {
	owner := uuid.NewString()
	account, err := accounts.Create(ctx, newAccount(owner, "del-1", nil))
	require.NoError(t, err)
	accountID := account["id"].(string)

	post, err := posts.Create(ctx, newPost(owner, map[string]interface{}{"linkedin_account_id": accountID}))
	require.NoError(t, err)
	postID := post["id"].(string)

	record, err := analytics.Create(ctx, map[string]interface{}{
		"post_id":     postID,
		"user_id":     owner,
		"impressions": int64(10),
		"recorded_at": time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, accounts.Delete(ctx, interfaces.StringID(accountID)))
	got, err := posts.GetByID(ctx, interfaces.StringID(postID))
	require.NoError(t, err)
	assert.Nil(t, got["linkedin_account_id"])

	require.NoError(t, posts.Delete(ctx, interfaces.StringID(postID)))
	_, err = analytics.GetByID(ctx, interfaces.StringID(record["id"].(string)))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func testTransactions(t *testing.T, ctx context.Context, db interfaces.Database, posts interfaces.Repository) {
	owner := uuid.NewString()
	byOwner := &interfaces.Query{Where: interfaces.Where(interfaces.Eq("user_id", owner))}

	err := db.Transaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		_, err := posts.Create(ctx, newPost(owner, map[string]interface{}{"title": "committed"}))
		return err
	})
	require.NoError(t, err)

	count, err := posts.Count(ctx, byOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = db.Transaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		if _, err := posts.Create(ctx, newPost(owner, map[string]interface{}{"title": "rolled back"})); err != nil {
			return err
		}
		return interfaces.ErrInvalidQuery
	})
	assert.ErrorIs(t, err, interfaces.ErrInvalidQuery)

	count, err = posts.Count(ctx, byOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
