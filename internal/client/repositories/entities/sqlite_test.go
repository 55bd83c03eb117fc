package entities

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/migrations"
	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var testDefs = []TableDef{
	{Name: models.EntityProducts, Indexes: []string{"sku", "category"}},
	{Name: models.EntityCustomers, Indexes: []string{"email"}},
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	return db
}

func newEntity(id, ws string, data map[string]any) *models.Entity {
	now := models.Now()
	return &models.Entity{
		ID:          id,
		WorkspaceID: ws,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  models.SyncStatusPending,
		Version:     1,
		Data:        data,
	}
}

func collect(t *testing.T, r *SQLiteRepository, table models.EntityType, f Filter) []string {
	t.Helper()
	var ids []string
	for e, err := range r.Query(context.Background(), table, f) {
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	return ids
}

func TestUpsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)
	ctx := context.Background()

	e := newEntity("p1", "ws1", map[string]any{"name": "Widget", "sku": "W-1", "price": 9.5})
	require.NoError(t, r.Upsert(ctx, models.EntityProducts, e))

	got, err := r.Get(ctx, models.EntityProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "ws1", got.WorkspaceID)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)
	assert.Nil(t, got.LastSyncedAt)
	assert.Equal(t, map[string]any{"name": "Widget", "sku": "W-1", "price": 9.5}, got.Data)

	e.Data["price"] = 11.0
	e.Version = 2
	require.NoError(t, r.Upsert(ctx, models.EntityProducts, e))

	got, err = r.Get(ctx, models.EntityProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 11.0, got.Data["price"])
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)

	_, err := r.Get(context.Background(), models.EntityProducts, "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUnknownTable(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)
	ctx := context.Background()

	_, err := r.Get(ctx, models.EntityLoans, "x")
	require.ErrorIs(t, err, common.ErrUnknownTable)

	err = r.Upsert(ctx, "nope", newEntity("x", "ws", nil))
	require.ErrorIs(t, err, common.ErrUnknownTable)
}

func TestUpsert_WorkspaceIsImmutable(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, models.EntityProducts, newEntity("p1", "ws1", nil)))

	err := r.Upsert(ctx, models.EntityProducts, newEntity("p1", "ws2", nil))
	require.ErrorIs(t, err, common.ErrWorkspaceMismatch)
}

func TestQuery_Filters(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)
	ctx := context.Background()

	base := models.Now()
	for i, p := range []struct {
		id, ws, category string
		deleted          bool
	}{
		{"p1", "ws1", "tools", false},
		{"p2", "ws1", "food", false},
		{"p3", "ws1", "tools", true},
		{"p4", "ws2", "tools", false},
		{"p5", "ws1", "tools", false},
	} {
		e := newEntity(p.id, p.ws, map[string]any{"category": p.category})
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		e.IsDeleted = p.deleted
		require.NoError(t, r.Upsert(ctx, models.EntityProducts, e))
	}

	assert.Equal(t, []string{"p1", "p2", "p5"},
		collect(t, r, models.EntityProducts, Filter{WorkspaceID: "ws1"}))

	assert.Equal(t, []string{"p1", "p5"},
		collect(t, r, models.EntityProducts, Filter{WorkspaceID: "ws1", Conditions: []Condition{Eq("category", "tools")}}))

	assert.Equal(t, []string{"p1", "p3", "p5"},
		collect(t, r, models.EntityProducts, Filter{
			WorkspaceID:    "ws1",
			IncludeDeleted: true,
			Conditions:     []Condition{Eq("category", "tools")},
		}))

	assert.Equal(t, []string{"p5", "p2"},
		collect(t, r, models.EntityProducts, Filter{WorkspaceID: "ws1", OrderBy: "createdAt", Desc: true, Limit: 2}))

	assert.Equal(t, []string{"p5"},
		collect(t, r, models.EntityProducts, Filter{
			WorkspaceID: "ws1",
			Conditions:  []Condition{Gt("createdAt", base.Add(3*time.Second))},
		}))
}

func TestQuery_NotIndexed(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)

	for _, err := range r.Query(context.Background(), models.EntityProducts, Filter{Conditions: []Condition{Eq("price", 1)}}) {
		require.ErrorIs(t, err, ErrNotIndexed)
	}
}

func TestQuery_StopEarly(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Upsert(ctx, models.EntityCustomers, newEntity(id, "ws", nil)))
	}

	n := 0
	for _, err := range r.Query(ctx, models.EntityCustomers, Filter{}) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestSetSyncedAndCountPending(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), testDefs)
	ctx := context.Background()

	e := newEntity("c1", "ws", map[string]any{"email": "a@b.c"})
	e.Version = 3
	require.NoError(t, r.Upsert(ctx, models.EntityCustomers, e))
	require.NoError(t, r.Upsert(ctx, models.EntityCustomers, newEntity("c2", "ws", nil)))

	n, err := r.CountPending(ctx, models.EntityCustomers, "ws")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	at := models.Now()
	require.NoError(t, r.SetSynced(ctx, models.EntityCustomers, "c1", 5, at))

	got, err := r.Get(ctx, models.EntityCustomers, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
	assert.Equal(t, int64(5), got.RemoteVersion)
	assert.Equal(t, int64(5), got.Version)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, at.Equal(*got.LastSyncedAt))

	n, err = r.CountPending(ctx, models.EntityCustomers, "ws")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.SetSyncStatus(ctx, models.EntityCustomers, "c1", models.SyncStatusConflict))
	got, err = r.Get(ctx, models.EntityCustomers, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusConflict, got.SyncStatus)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, testDefs)
	ctx := context.Background()

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, _ dbx.DBTX) error {
		if err := r.Upsert(ctx, models.EntityProducts, newEntity("p1", "ws", nil)); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = r.Get(ctx, models.EntityProducts, "p1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
