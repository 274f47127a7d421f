package services

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richardnoragon/budgetauth/internal/database"
	"github.com/richardnoragon/budgetauth/internal/models"
	pw "github.com/richardnoragon/budgetauth/internal/password"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// setupDB opens a private in-memory database with the full schema applied.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // keep the in-memory database pinned to one connection

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mustCreateUser inserts an account with a real hash for password.
func mustCreateUser(t *testing.T, users *UserService, username, password string) models.User {
	t.Helper()
	hash, err := pw.Hash(password)
	require.NoError(t, err)
	user, err := users.CreateUser(username, hash, "", "")
	require.NoError(t, err)
	return user
}

// backdateSession rewrites a session's last activity, simulating idle time.
func backdateSession(t *testing.T, db *sql.DB, sessionID string, age time.Duration) {
	t.Helper()
	stamp := models.FormatTime(time.Now().Add(-age))
	res, err := db.Exec("UPDATE user_sessions SET last_activity = ? WHERE id = ?", stamp, sessionID)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
