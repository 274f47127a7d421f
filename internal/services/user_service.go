package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richardnoragon/budgetauth/internal/models"
	"github.com/rs/zerolog/log"
)

// UserServiceProvider defines the interface for account storage.
type UserServiceProvider interface {
	CreateUser(username, passwordHash, email, fullName string) (models.User, error)
	GetUserByUsername(username string) (models.User, error)
	GetUserByID(id string) (models.User, error)
	ListUsers() ([]models.User, error)
	UpdateLastLogin(id string) error
	ChangePassword(id, newHash string) error
	Deactivate(id string) error
	Activate(id string) error
	DeleteUser(id string) error
	HasAnyUser() (bool, error)
}

// UserService provides durable account storage with uniqueness enforcement.
type UserService struct {
	db *sql.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

const userColumns = "id, username, password_hash, email, full_name, is_active, created_at, last_login"

// CreateUser inserts a new account. Username comparison is case-insensitive,
// so "Alice" collides with "alice".
func (s *UserService) CreateUser(username, passwordHash, email, fullName string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return models.User{}, fmt.Errorf("%w: username and password hash are required", models.ErrInvalidInput)
	}

	var one int
	err := s.db.QueryRow("SELECT 1 FROM users WHERE username = ? COLLATE NOCASE", username).Scan(&one)
	if err == nil {
		return models.User{}, models.ErrDuplicateUsername
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.User{}, err
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		FullName:     fullName,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.Exec(
		"INSERT INTO users(id, username, password_hash, email, full_name, is_active, created_at) VALUES(?, ?, ?, ?, ?, 1, ?)",
		user.ID, user.Username, user.PasswordHash, user.Email, user.FullName, models.FormatTime(user.CreatedAt),
	)
	if err != nil {
		// The UNIQUE constraint backstops the pre-check when two creates race.
		if strings.Contains(err.Error(), "UNIQUE") {
			return models.User{}, models.ErrDuplicateUsername
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUserByUsername retrieves an active account by name, case-insensitively.
// Deactivated accounts are invisible to this lookup.
func (s *UserService) GetUserByUsername(username string) (models.User, error) {
	row := s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE username = ? COLLATE NOCASE AND is_active = 1", username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return user, err
}

// GetUserByID retrieves an active account by id.
func (s *UserService) GetUserByID(id string) (models.User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ? AND is_active = 1", id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return user, err
}

// ListUsers returns all active accounts ordered by username. Rows whose
// stored timestamps fail to parse are logged and skipped rather than
// aborting the whole listing.
func (s *UserService) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users WHERE is_active = 1 ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			var dataErr *models.DataError
			if errors.As(err, &dataErr) {
				log.Warn().Err(err).Msg("Skipping unreadable user record")
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateLastLogin stamps the account's last successful login.
func (s *UserService) UpdateLastLogin(id string) error {
	return s.execOne("UPDATE users SET last_login = ? WHERE id = ?", models.FormatTime(time.Now()), id)
}

// ChangePassword replaces the stored hash.
func (s *UserService) ChangePassword(id, newHash string) error {
	if newHash == "" {
		return fmt.Errorf("%w: password hash is required", models.ErrInvalidInput)
	}
	return s.execOne("UPDATE users SET password_hash = ? WHERE id = ?", newHash, id)
}

// Deactivate hides the account from normal lookups without deleting it.
func (s *UserService) Deactivate(id string) error {
	return s.execOne("UPDATE users SET is_active = 0 WHERE id = ?", id)
}

// Activate restores a deactivated account.
func (s *UserService) Activate(id string) error {
	return s.execOne("UPDATE users SET is_active = 1 WHERE id = ?", id)
}

// DeleteUser removes the account; profiles and sessions cascade away with it.
func (s *UserService) DeleteUser(id string) error {
	return s.execOne("DELETE FROM users WHERE id = ?", id)
}

// HasAnyUser reports whether any account exists, active or not. Used for
// first-run bootstrap detection: a database where every account was
// deactivated must not get a second admin.
func (s *UserService) HasAnyUser() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *UserService) execOne(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// scanUser decodes one users row from either a *sql.Row or *sql.Rows.
func scanUser(sc interface{ Scan(dest ...any) error }) (models.User, error) {
	var (
		user            models.User
		email, fullName sql.NullString
		active          int
		createdAt       string
		lastLogin       sql.NullString
	)
	err := sc.Scan(&user.ID, &user.Username, &user.PasswordHash, &email, &fullName, &active, &createdAt, &lastLogin)
	if err != nil {
		return models.User{}, err
	}
	user.Email = email.String
	user.FullName = fullName.String
	user.IsActive = active != 0

	created, err := models.ParseTime(createdAt)
	if err != nil {
		return models.User{}, err
	}
	user.CreatedAt = created

	if lastLogin.Valid && lastLogin.String != "" {
		t, err := models.ParseTime(lastLogin.String)
		if err != nil {
			return models.User{}, err
		}
		user.LastLogin = &t
	}
	return user, nil
}
