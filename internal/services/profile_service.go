package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richardnoragon/budgetauth/internal/environment"
	"github.com/richardnoragon/budgetauth/internal/models"
	"github.com/rs/zerolog/log"
)

// ProfileServiceProvider defines the interface for environment profile storage.
type ProfileServiceProvider interface {
	CreateProfile(userID, name, env string, prefs *models.Preferences) (models.EnvironmentProfile, error)
	GetProfilesForUser(userID string) ([]models.EnvironmentProfile, error)
	GetProfileByID(id string) (models.EnvironmentProfile, error)
	UpdateProfile(id, name, env string) (models.EnvironmentProfile, error)
	UpdatePreferences(id string, prefs models.Preferences) error
	DeleteProfile(id string) error
	SetDefaultProfile(userID, profileID string) error
	DefaultProfileForUser(userID string) (models.EnvironmentProfile, error)
}

// ProfileService stores per-user environment profiles and enforces the
// profile-count cap and the single-default invariant.
type ProfileService struct {
	db *sql.DB
}

// NewProfileService creates a new ProfileService.
func NewProfileService(db *sql.DB) *ProfileService {
	return &ProfileService{db: db}
}

const profileColumns = "id, user_id, name, environment, preferences, is_default, created_at, updated_at"

// CreateProfile inserts a new profile for userID. Profile names are unique
// per user (case-insensitive) and a user may hold at most
// models.MaxProfilesPerUser profiles. The user's first profile is promoted
// to default automatically. A nil prefs seeds the environment's defaults.
func (s *ProfileService) CreateProfile(userID, name, env string, prefs *models.Preferences) (models.EnvironmentProfile, error) {
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return models.EnvironmentProfile{}, fmt.Errorf("%w: user id and profile name are required", models.ErrInvalidInput)
	}
	if !environment.IsValid(env) {
		return models.EnvironmentProfile{}, fmt.Errorf("%w: %q", models.ErrInvalidEnvironment, env)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.EnvironmentProfile{}, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM user_profiles WHERE user_id = ?", userID).Scan(&count); err != nil {
		return models.EnvironmentProfile{}, err
	}
	if count >= models.MaxProfilesPerUser {
		return models.EnvironmentProfile{}, models.ErrProfileLimit
	}

	var one int
	err = tx.QueryRow(
		"SELECT 1 FROM user_profiles WHERE user_id = ? AND name = ? COLLATE NOCASE", userID, name).Scan(&one)
	if err == nil {
		return models.EnvironmentProfile{}, models.ErrDuplicateProfileName
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.EnvironmentProfile{}, err
	}

	if prefs == nil {
		p := environment.DefaultPreferences(env)
		prefs = &p
	}
	blob, err := prefs.Encode()
	if err != nil {
		return models.EnvironmentProfile{}, err
	}

	now := time.Now().UTC()
	profile := models.EnvironmentProfile{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Environment: env,
		Preferences: *prefs,
		IsDefault:   count == 0, // first profile becomes the default
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = tx.Exec(
		"INSERT INTO user_profiles(id, user_id, name, environment, preferences, is_default, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)",
		profile.ID, profile.UserID, profile.Name, profile.Environment, blob,
		boolToInt(profile.IsDefault), models.FormatTime(now), models.FormatTime(now),
	)
	if err != nil {
		return models.EnvironmentProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.EnvironmentProfile{}, err
	}
	return profile, nil
}

// GetProfilesForUser returns the user's profiles, default first. Rows with
// unreadable timestamps or preference blobs are logged and skipped.
func (s *ProfileService) GetProfilesForUser(userID string) ([]models.EnvironmentProfile, error) {
	rows, err := s.db.Query(
		"SELECT "+profileColumns+" FROM user_profiles WHERE user_id = ? ORDER BY is_default DESC, created_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.EnvironmentProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			var dataErr *models.DataError
			if errors.As(err, &dataErr) {
				log.Warn().Err(err).Str("user_id", userID).Msg("Skipping unreadable profile record")
				continue
			}
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// GetProfileByID retrieves a single profile.
func (s *ProfileService) GetProfileByID(id string) (models.EnvironmentProfile, error) {
	row := s.db.QueryRow("SELECT "+profileColumns+" FROM user_profiles WHERE id = ?", id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EnvironmentProfile{}, models.ErrNotFound
	}
	return profile, err
}

// UpdateProfile renames and/or retags a profile, keeping per-user name
// uniqueness.
func (s *ProfileService) UpdateProfile(id, name, env string) (models.EnvironmentProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.EnvironmentProfile{}, fmt.Errorf("%w: profile name is required", models.ErrInvalidInput)
	}
	if !environment.IsValid(env) {
		return models.EnvironmentProfile{}, fmt.Errorf("%w: %q", models.ErrInvalidEnvironment, env)
	}

	current, err := s.GetProfileByID(id)
	if err != nil {
		return models.EnvironmentProfile{}, err
	}

	var one int
	err = s.db.QueryRow(
		"SELECT 1 FROM user_profiles WHERE user_id = ? AND name = ? COLLATE NOCASE AND id != ?",
		current.UserID, name, id).Scan(&one)
	if err == nil {
		return models.EnvironmentProfile{}, models.ErrDuplicateProfileName
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.EnvironmentProfile{}, err
	}

	_, err = s.db.Exec(
		"UPDATE user_profiles SET name = ?, environment = ?, updated_at = ? WHERE id = ?",
		name, env, models.FormatTime(time.Now()), id)
	if err != nil {
		return models.EnvironmentProfile{}, err
	}
	return s.GetProfileByID(id)
}

// UpdatePreferences persists a full preference set for the profile.
func (s *ProfileService) UpdatePreferences(id string, prefs models.Preferences) error {
	blob, err := prefs.Encode()
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		"UPDATE user_profiles SET preferences = ?, updated_at = ? WHERE id = ?",
		blob, models.FormatTime(time.Now()), id)
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

// DeleteProfile removes a profile. Deleting the user's only profile is
// refused; deleting the default promotes the oldest remaining profile so the
// user never ends up with profiles but no default.
func (s *ProfileService) DeleteProfile(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		userID    string
		isDefault int
	)
	err = tx.QueryRow("SELECT user_id, is_default FROM user_profiles WHERE id = ?", id).Scan(&userID, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM user_profiles WHERE user_id = ?", userID).Scan(&count); err != nil {
		return err
	}
	if count <= 1 {
		return models.ErrLastProfile
	}

	if _, err := tx.Exec("DELETE FROM user_profiles WHERE id = ?", id); err != nil {
		return err
	}

	if isDefault != 0 {
		// Re-elect the oldest remaining profile as the new default.
		_, err = tx.Exec(
			`UPDATE user_profiles SET is_default = 1 WHERE id =
				(SELECT id FROM user_profiles WHERE user_id = ? ORDER BY created_at, id LIMIT 1)`, userID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetDefaultProfile atomically clears the user's defaults and marks the
// requested profile.
func (s *ProfileService) SetDefaultProfile(userID, profileID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow("SELECT 1 FROM user_profiles WHERE id = ? AND user_id = ?", profileID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec("UPDATE user_profiles SET is_default = 0 WHERE user_id = ?", userID); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE user_profiles SET is_default = 1, updated_at = ? WHERE id = ?",
		models.FormatTime(time.Now()), profileID); err != nil {
		return err
	}
	return tx.Commit()
}

// DefaultProfileForUser resolves the profile a login should select: the one
// flagged default, else the oldest, else ErrNotFound when the user has none.
func (s *ProfileService) DefaultProfileForUser(userID string) (models.EnvironmentProfile, error) {
	row := s.db.QueryRow(
		"SELECT "+profileColumns+" FROM user_profiles WHERE user_id = ? ORDER BY is_default DESC, created_at, id LIMIT 1",
		userID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EnvironmentProfile{}, models.ErrNotFound
	}
	return profile, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanProfile decodes one user_profiles row from a *sql.Row or *sql.Rows.
func scanProfile(sc interface{ Scan(dest ...any) error }) (models.EnvironmentProfile, error) {
	var (
		profile              models.EnvironmentProfile
		blob                 string
		isDefault            int
		createdAt, updatedAt string
	)
	err := sc.Scan(&profile.ID, &profile.UserID, &profile.Name, &profile.Environment,
		&blob, &isDefault, &createdAt, &updatedAt)
	if err != nil {
		return models.EnvironmentProfile{}, err
	}
	profile.IsDefault = isDefault != 0

	if profile.Preferences, err = models.DecodePreferences(blob); err != nil {
		return models.EnvironmentProfile{}, err
	}
	if profile.CreatedAt, err = models.ParseTime(createdAt); err != nil {
		return models.EnvironmentProfile{}, err
	}
	if profile.UpdatedAt, err = models.ParseTime(updatedAt); err != nil {
		return models.EnvironmentProfile{}, err
	}
	return profile, nil
}
