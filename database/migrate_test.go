package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quincarter/coffee-app-sub000/internal/db"
)

func TestRunMigrations_SQLite(t *testing.T) {
	conn, err := db.Open(context.Background(), db.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, RunMigrations(conn.DB, db.SQLite))
	// second run is a no-op
	require.NoError(t, RunMigrations(conn.DB, db.SQLite))

	v, dirty, err := Version(conn.DB, db.SQLite)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	var n int
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM users`))
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM auth_tokens`))

	require.NoError(t, RollbackMigrations(conn.DB, db.SQLite))
	assert.Error(t, conn.Get(&n, `SELECT COUNT(*) FROM users`))
}

func TestRunMigrations_UnknownType(t *testing.T) {
	assert.Error(t, RunMigrations(nil, db.Type("mysql")))
}
