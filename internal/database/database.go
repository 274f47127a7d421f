package database

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool with foreign keys enforced.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		email TEXT,
		full_name TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		last_login TEXT
	);

	CREATE TABLE IF NOT EXISTS user_profiles (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		environment TEXT NOT NULL,
		-- preference sets persist as JSON text
		preferences TEXT NOT NULL DEFAULT '{}',
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_sessions (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		profile_id TEXT REFERENCES user_profiles(id) ON DELETE SET NULL,
		login_at TEXT NOT NULL,
		last_activity TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_user ON user_profiles(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON user_sessions(user_id);
	`
	_, err := db.Exec(sqlStmt)
	return err
}

// Backup writes a consistent copy of the live database to destPath using
// sqlite's VACUUM INTO, which is safe while the database is in use.
func Backup(db *sql.DB, destPath string) error {
	_, err := db.Exec("VACUUM INTO ?", destPath)
	return err
}
