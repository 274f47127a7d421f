package services

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richardnoragon/budgetauth/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionServiceProvider defines the interface for session storage.
type SessionServiceProvider interface {
	CreateSession(userID, profileID string) (models.Session, error)
	GetSession(id string) (models.Session, error)
	TouchActivity(id string) error
	SetCurrentProfile(id, profileID string) error
	DeleteSession(id string) error
	PurgeExpired(timeout time.Duration) (int, error)
}

// SessionService stores live sessions. A user holds at most one live session:
// creating a new one evicts any prior one inside the same transaction, so
// when two logins race the last writer owns the single session.
type SessionService struct {
	db *sql.DB
}

// NewSessionService creates a new SessionService.
func NewSessionService(db *sql.DB) *SessionService {
	return &SessionService{db: db}
}

// CreateSession evicts any session the user already holds and inserts a
// fresh one whose id is the opaque token handed to callers.
func (s *SessionService) CreateSession(userID, profileID string) (models.Session, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return models.Session{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM user_sessions WHERE user_id = ?", userID); err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	session := models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProfileID:    profileID,
		LoginAt:      now,
		LastActivity: now,
	}

	_, err = tx.Exec(
		"INSERT INTO user_sessions(id, user_id, profile_id, login_at, last_activity) VALUES(?, ?, ?, ?, ?)",
		session.ID, session.UserID, nullIfEmpty(profileID),
		models.FormatTime(now), models.FormatTime(now),
	)
	if err != nil {
		return models.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// GetSession retrieves a session by token. Expiry is the caller's concern;
// this returns whatever the store holds.
func (s *SessionService) GetSession(id string) (models.Session, error) {
	row := s.db.QueryRow(
		"SELECT id, user_id, profile_id, login_at, last_activity FROM user_sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, models.ErrNotFound
	}
	return session, err
}

// TouchActivity stamps the session's last activity with the current time.
func (s *SessionService) TouchActivity(id string) error {
	return s.execOne("UPDATE user_sessions SET last_activity = ? WHERE id = ?",
		models.FormatTime(time.Now()), id)
}

// SetCurrentProfile repoints the session at another profile. Ownership of
// the profile is validated by the orchestration layer.
func (s *SessionService) SetCurrentProfile(id, profileID string) error {
	return s.execOne("UPDATE user_sessions SET profile_id = ?, last_activity = ? WHERE id = ?",
		nullIfEmpty(profileID), models.FormatTime(time.Now()), id)
}

// DeleteSession removes a session.
func (s *SessionService) DeleteSession(id string) error {
	return s.execOne("DELETE FROM user_sessions WHERE id = ?", id)
}

// PurgeExpired deletes every session idle past timeout and returns how many
// were removed. Sessions with an unreadable activity timestamp are purged
// too: a session we cannot age is not one we can trust.
func (s *SessionService) PurgeExpired(timeout time.Duration) (int, error) {
	rows, err := s.db.Query("SELECT id, last_activity FROM user_sessions")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cutoff := time.Now().Add(-timeout)
	var stale []string
	for rows.Next() {
		var id, lastActivity string
		if err := rows.Scan(&id, &lastActivity); err != nil {
			return 0, err
		}
		t, err := models.ParseTime(lastActivity)
		if err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("Purging session with unreadable activity timestamp")
			stale = append(stale, id)
			continue
		}
		if t.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := s.db.Exec("DELETE FROM user_sessions WHERE id = ?", id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func (s *SessionService) execOne(query string, args ...any) error {
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

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanSession decodes one user_sessions row.
func scanSession(sc interface{ Scan(dest ...any) error }) (models.Session, error) {
	var (
		session               models.Session
		profileID             sql.NullString
		loginAt, lastActivity string
	)
	err := sc.Scan(&session.ID, &session.UserID, &profileID, &loginAt, &lastActivity)
	if err != nil {
		return models.Session{}, err
	}
	session.ProfileID = profileID.String

	if session.LoginAt, err = models.ParseTime(loginAt); err != nil {
		return models.Session{}, err
	}
	if session.LastActivity, err = models.ParseTime(lastActivity); err != nil {
		return models.Session{}, err
	}
	return session, nil
}
