package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.db")
	for i := 0; i < 3; i++ {
		db, err := OpenSQLite(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, db.Close())
	}
}

func TestOpenSQLite_RecordsMigrationAndUsesWAL(t *testing.T) {
	db := openTestDB(t)

	var version int64
	require.NoError(t, db.QueryRow(`SELECT MAX(version_id) FROM goose_db_version WHERE is_applied = 1`).Scan(&version))
	require.Equal(t, int64(1), version)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}
