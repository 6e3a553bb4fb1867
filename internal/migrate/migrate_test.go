package migrate

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_history.sql", "0001", "history", true},
		{"0042_add_index_on_x.sql", "0042", "add_index_on_x", true},
		{"1_short.sql", "", "", false},
		{"0001_history.txt", "", "", false},
		{"README.md", "", "", false},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.wantVersion, v, tt.in)
		assert.Equal(t, tt.wantName, n, tt.in)
	}
}

func TestRun_EmbeddedSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	applied, err := Run(ctx, db, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001"}, applied)

	applied, err = Run(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, applied)

	for _, table := range []string{"snapshots", "readings", tableName} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestRun_OrdersAndSkipsNonMigrations(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"sql/0002_second.sql": {Data: []byte(`INSERT INTO t (v) VALUES ('second');`)},
		"sql/0001_first.sql":  {Data: []byte(`CREATE TABLE t (v TEXT); INSERT INTO t (v) VALUES ('first');`)},
		"sql/notes.txt":       {Data: []byte(`not sql`)},
	}

	applied, err := run(context.Background(), db, fsys, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001", "0002"}, applied)

	rows, err := db.Query(`SELECT v FROM t ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		got = append(got, v)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestRun_FailedMigrationIsRolledBack(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"sql/0001_ok.sql":     {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
		"sql/0002_broken.sql": {Data: []byte(`CREATE TABLE half (id INTEGER); INSERT INTO nowhere VALUES (1);`)},
	}

	applied, err := run(context.Background(), db, fsys, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_broken.sql")
	assert.Equal(t, []string{"0001"}, applied)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='half'`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+tableName).Scan(&n))
	assert.Equal(t, 1, n)
}
