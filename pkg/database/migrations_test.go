package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "data", "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)

	mode, err := db.JournalMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
	assert.Equal(t, "test.db", filepath.Base(db.Path()))

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestMigrator_Up(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"002_order_notes.sql": {Data: []byte("ALTER TABLE orders ADD COLUMN notes TEXT;")},
		"001_orders.sql":      {Data: []byte("CREATE TABLE orders (id INTEGER PRIMARY KEY);")},
		"README.md":           {Data: []byte("not a migration")},
	}

	migrator := NewMigrator(db, zap.NewNop())
	n, err := migrator.Up(ctx, fsys)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = db.Exec("INSERT INTO orders (id, notes) VALUES (1, 'gas recharge')")
	require.NoError(t, err)

	applied, err := migrator.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "orders", applied[0].Name)
	assert.Equal(t, "order_notes", applied[1].Name)
	assert.Len(t, applied[0].Checksum, 64)

	n, err = migrator.Up(ctx, fsys)
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")
}

func TestMigrator_DetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	_, err := migrator.Up(ctx, fstest.MapFS{
		"001_orders.sql": {Data: []byte("CREATE TABLE orders (id INTEGER PRIMARY KEY);")},
	})
	require.NoError(t, err)

	_, err = migrator.Up(ctx, fstest.MapFS{
		"001_orders.sql": {Data: []byte("CREATE TABLE orders (id INTEGER PRIMARY KEY, code TEXT);")},
	})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"001_broken.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); THIS IS NOT SQL;")},
	}

	_, err := NewMigrator(db, zap.NewNop()).Up(ctx, fsys)
	require.Error(t, err)

	applied, err := NewMigrator(db, zap.NewNop()).Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestLoad_RejectsBadNames(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "no version",
			fsys: fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}},
		},
		{
			name: "upper case name",
			fsys: fstest.MapFS{"001_Init.sql": {Data: []byte("SELECT 1;")}},
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"001_a.sql": {Data: []byte("SELECT 1;")},
				"01_b.sql":  {Data: []byte("SELECT 1;")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.fsys)
			assert.Error(t, err)
		})
	}
}
