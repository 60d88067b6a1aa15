package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupTestDB creates an in-memory SQLite database with all migrations applied.
// It is closed when the test completes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would get its own empty in-memory database.
	conn.SetMaxOpenConns(1)

	require.NoError(t, conn.PingContext(context.Background()))

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
	}
	for _, pragma := range pragmas {
		_, err = conn.ExecContext(context.Background(), pragma)
		require.NoError(t, err)
	}

	require.NoError(t, migrate(conn))

	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// SetupTestDBWithData creates a test database and runs setupFunc after the
// migrations.
func SetupTestDBWithData(t *testing.T, setupFunc func(*sql.DB)) *sql.DB {
	t.Helper()

	conn := SetupTestDB(t)
	if setupFunc != nil {
		setupFunc(conn)
	}
	return conn
}

// CreateTestSession inserts a minimal session row.
func CreateTestSession(conn *sql.DB, sessionID, engine, project string, updatedAt int64) error {
	_, err := conn.ExecContext(context.Background(), `
		INSERT INTO sessions (id, engine, project_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, engine, project, updatedAt, updatedAt)
	return err
}
