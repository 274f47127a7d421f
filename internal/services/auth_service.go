package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/richardnoragon/budgetauth/internal/environment"
	"github.com/richardnoragon/budgetauth/internal/models"
	pw "github.com/richardnoragon/budgetauth/internal/password"
	"github.com/rs/zerolog/log"
)

// AuthServiceProvider is the narrow contract GUI and CLI callers consume.
//
// Authentication-sensitive operations (login, logout, preference access)
// never surface store errors: they log the real reason and return a uniform
// failure value so a caller cannot tell a wrong password from a broken
// store. Administrative operations return distinguishable errors for
// display.
type AuthServiceProvider interface {
	Bootstrap() error
	Login(username, password string) string
	Logout() bool
	IsAuthenticated() bool
	CurrentUser() *models.User
	CurrentProfile() *models.EnvironmentProfile
	SwitchProfile(profileID string) bool
	GetUserProfiles() []models.EnvironmentProfile

	CreateUser(username, password, email, fullName string) (models.User, error)
	DeactivateUser(userID string) error
	DeleteUser(userID string) error
	GetAllUsers() ([]models.User, error)
	CreateProfile(name, env string) (models.EnvironmentProfile, error)
	UpdateProfile(profileID, name, env string) error
	DeleteProfile(profileID string) error
	SetDefaultProfile(profileID string) error

	GetPreference(key string, fallback any) any
	SetPreference(key string, value any) bool
	UpdatePreferences(values map[string]any) bool

	IsCurrentUserAdmin() bool
	ChangePassword(oldPassword, newPassword string) bool
	IsUsingDefaultPassword() bool

	EnvironmentTypes() []string
	DefaultPreferencesForEnvironment(kind string) (models.Preferences, error)

	ValidateSession(token string) bool
	LoadSession(token string) bool
	UpdateActivity() bool

	BackupDatabase(destDir string) (string, error)
	ResetCurrent()
}

// AuthService orchestrates the credential, profile and session stores into
// the login/profile/preference workflow. Construct one per process and
// inject it into callers; there is deliberately no package-level instance.
type AuthService struct {
	users    UserServiceProvider
	profiles ProfileServiceProvider
	sessions SessionServiceProvider
	backups  BackupServiceProvider
	timeout  time.Duration

	// mu guards the current (session, user, profile) triple; the three are
	// always set and cleared together.
	mu             sync.Mutex
	currentSession *models.Session
	currentUser    *models.User
	currentProfile *models.EnvironmentProfile
}

// NewAuthService creates a new AuthService. A non-positive timeout falls
// back to models.DefaultSessionTimeout.
func NewAuthService(users UserServiceProvider, profiles ProfileServiceProvider, sessions SessionServiceProvider, backups BackupServiceProvider, timeout time.Duration) *AuthService {
	if timeout <= 0 {
		timeout = models.DefaultSessionTimeout
	}
	return &AuthService{
		users:    users,
		profiles: profiles,
		sessions: sessions,
		backups:  backups,
		timeout:  timeout,
	}
}

// Bootstrap sweeps expired sessions and, on a database with no accounts at
// all, creates the administrative account with the default password and a
// single default Personal profile. This is the only path that creates the
// admin account.
func (s *AuthService) Bootstrap() error {
	if purged, err := s.sessions.PurgeExpired(s.timeout); err != nil {
		log.Warn().Err(err).Msg("Bootstrap: expired session sweep failed")
	} else if purged > 0 {
		log.Info().Int("count", purged).Msg("Bootstrap: purged expired sessions")
	}

	hasUsers, err := s.users.HasAnyUser()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if hasUsers {
		return nil
	}

	hash, err := pw.Hash(pw.DefaultPassword)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	admin, err := s.users.CreateUser(models.AdminUsername, hash, "", "Administrator")
	if err != nil {
		return fmt.Errorf("bootstrap: could not create admin account: %w", err)
	}
	if _, err := s.profiles.CreateProfile(admin.ID, "Personal", environment.Personal, nil); err != nil {
		return fmt.Errorf("bootstrap: could not create admin profile: %w", err)
	}
	log.Info().Msg("First run: created administrative account with default password")
	return nil
}

// Login verifies the credentials and, on success, opens a session bound to
// the user's default profile and returns its token. Every failure mode
// (unknown user, inactive user, wrong password, store error) is logged with
// its reason but returns the same empty token.
func (s *AuthService) Login(username, password string) string {
	user, err := s.users.GetUserByUsername(username)
	if err != nil {
		log.Warn().Str("username", username).Err(err).Msg("Login failed: unknown or inactive user")
		return ""
	}
	if !pw.Verify(password, user.PasswordHash) {
		log.Warn().Str("username", username).Msg("Login failed: invalid password")
		return ""
	}

	var profileID string
	profile, err := s.profiles.DefaultProfileForUser(user.ID)
	switch {
	case err == nil:
		profileID = profile.ID
	case errors.Is(err, models.ErrNotFound):
		// The user has no profiles; the session starts unpinned.
	default:
		log.Error().Str("username", username).Err(err).Msg("Login failed: could not resolve default profile")
		return ""
	}

	session, err := s.sessions.CreateSession(user.ID, profileID)
	if err != nil {
		log.Error().Str("username", username).Err(err).Msg("Login failed: could not create session")
		return ""
	}

	if err := s.users.UpdateLastLogin(user.ID); err != nil {
		log.Warn().Str("username", username).Err(err).Msg("Could not update last login timestamp")
	}
	now := time.Now().UTC()
	user.LastLogin = &now

	s.mu.Lock()
	s.currentSession = &session
	s.currentUser = &user
	if profileID != "" {
		s.currentProfile = &profile
	} else {
		s.currentProfile = nil
	}
	s.mu.Unlock()

	log.Info().Str("username", user.Username).Msg("User logged in")
	return session.ID
}

// Logout deletes the current session and clears the in-memory state
// regardless of whether the store delete succeeded, so the caller always
// ends up unauthenticated. The return value reports the store delete so a
// caller can surface a soft warning. Calling it with no session is a no-op
// that returns true.
func (s *AuthService) Logout() bool {
	s.mu.Lock()
	session := s.currentSession
	s.currentSession = nil
	s.currentUser = nil
	s.currentProfile = nil
	s.mu.Unlock()

	if session == nil {
		return true
	}
	if err := s.sessions.DeleteSession(session.ID); err != nil {
		log.Warn().Str("session_id", session.ID).Err(err).Msg("Logout: could not delete stored session")
		return false
	}
	return true
}

// IsAuthenticated reports whether a session is active.
func (s *AuthService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSession != nil
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (s *AuthService) CurrentUser() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUser == nil {
		return nil
	}
	user := *s.currentUser
	return &user
}

// CurrentProfile returns a copy of the active profile, or nil.
func (s *AuthService) CurrentProfile() *models.EnvironmentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentProfile == nil {
		return nil
	}
	profile := *s.currentProfile
	return &profile
}

// SwitchProfile repoints the session at another of the current user's
// profiles and persists the new pointer.
func (s *AuthService) SwitchProfile(profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSession == nil {
		return false
	}

	profile, err := s.profiles.GetProfileByID(profileID)
	if err != nil || profile.UserID != s.currentUser.ID {
		log.Warn().Str("profile_id", profileID).Str("username", s.currentUser.Username).
			Msg("Profile switch rejected: profile does not belong to current user")
		return false
	}
	if err := s.sessions.SetCurrentProfile(s.currentSession.ID, profile.ID); err != nil {
		log.Error().Str("profile_id", profileID).Err(err).Msg("Could not persist profile switch")
		return false
	}
	s.currentProfile = &profile
	s.currentSession.ProfileID = profile.ID
	return true
}

// GetUserProfiles lists the current user's profiles, or nil when logged out.
func (s *AuthService) GetUserProfiles() []models.EnvironmentProfile {
	user := s.CurrentUser()
	if user == nil {
		return nil
	}
	profiles, err := s.profiles.GetProfilesForUser(user.ID)
	if err != nil {
		log.Error().Str("username", user.Username).Err(err).Msg("Could not list profiles")
		return nil
	}
	return profiles
}

// CreateUser creates an account and its auto-created default Personal
// profile.
func (s *AuthService) CreateUser(username, password, email, fullName string) (models.User, error) {
	if ok, reason := pw.ValidateStrength(password); !ok {
		return models.User{}, fmt.Errorf("%w: %s", models.ErrInvalidInput, reason)
	}
	hash, err := pw.Hash(password)
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.CreateUser(username, hash, email, fullName)
	if err != nil {
		return models.User{}, err
	}
	if _, err := s.profiles.CreateProfile(user.ID, "Personal", environment.Personal, nil); err != nil {
		return models.User{}, fmt.Errorf("account created but default profile failed: %w", err)
	}
	return user, nil
}

// DeactivateUser hides an account from lookups and logins. The admin
// account cannot be deactivated.
func (s *AuthService) DeactivateUser(userID string) error {
	if err := s.rejectAdminTarget(userID); err != nil {
		return err
	}
	return s.users.Deactivate(userID)
}

// DeleteUser removes an account for good; its profiles and sessions cascade
// away with it. The admin account cannot be deleted.
func (s *AuthService) DeleteUser(userID string) error {
	if err := s.rejectAdminTarget(userID); err != nil {
		return err
	}
	return s.users.DeleteUser(userID)
}

// rejectAdminTarget refuses destructive operations aimed at the admin
// account, before they reach the store.
func (s *AuthService) rejectAdminTarget(userID string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return fmt.Errorf("%w: the admin account cannot be modified", models.ErrInvalidInput)
	}
	return nil
}

// GetAllUsers lists the active accounts.
func (s *AuthService) GetAllUsers() ([]models.User, error) {
	return s.users.ListUsers()
}

// CreateProfile adds a profile for the current user.
func (s *AuthService) CreateProfile(name, env string) (models.EnvironmentProfile, error) {
	user := s.CurrentUser()
	if user == nil {
		return models.EnvironmentProfile{}, models.ErrNotAuthenticated
	}
	return s.profiles.CreateProfile(user.ID, name, env, nil)
}

// UpdateProfile renames/retags one of the current user's profiles. The
// in-memory copy is refreshed when the active profile is the one updated.
func (s *AuthService) UpdateProfile(profileID, name, env string) error {
	user := s.CurrentUser()
	if user == nil {
		return models.ErrNotAuthenticated
	}
	if err := s.requireOwnership(user, profileID); err != nil {
		return err
	}
	updated, err := s.profiles.UpdateProfile(profileID, name, env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.currentProfile != nil && s.currentProfile.ID == profileID {
		s.currentProfile = &updated
	}
	s.mu.Unlock()
	return nil
}

// DeleteProfile removes one of the current user's profiles. Deleting the
// active profile repoints the session at the re-elected default.
func (s *AuthService) DeleteProfile(profileID string) error {
	user := s.CurrentUser()
	if user == nil {
		return models.ErrNotAuthenticated
	}
	if err := s.requireOwnership(user, profileID); err != nil {
		return err
	}
	if err := s.profiles.DeleteProfile(profileID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentProfile == nil || s.currentProfile.ID != profileID {
		return nil
	}
	fallback, err := s.profiles.DefaultProfileForUser(user.ID)
	if err != nil {
		log.Warn().Str("username", user.Username).Err(err).Msg("Could not resolve default profile after delete")
		s.currentProfile = nil
		return nil
	}
	if s.currentSession != nil {
		if err := s.sessions.SetCurrentProfile(s.currentSession.ID, fallback.ID); err != nil {
			log.Warn().Err(err).Msg("Could not repoint session after profile delete")
		}
		s.currentSession.ProfileID = fallback.ID
	}
	s.currentProfile = &fallback
	return nil
}

// SetDefaultProfile marks one of the current user's profiles as the default.
func (s *AuthService) SetDefaultProfile(profileID string) error {
	user := s.CurrentUser()
	if user == nil {
		return models.ErrNotAuthenticated
	}
	return s.profiles.SetDefaultProfile(user.ID, profileID)
}

// GetPreference reads a key from the active profile, returning fallback when
// logged out or the key is unset.
func (s *AuthService) GetPreference(key string, fallback any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentProfile == nil {
		return fallback
	}
	if v, ok := s.currentProfile.Preferences.Get(key); ok {
		return v
	}
	return fallback
}

// SetPreference writes one key to the active profile and persists it.
func (s *AuthService) SetPreference(key string, value any) bool {
	return s.UpdatePreferences(map[string]any{key: value})
}

// UpdatePreferences merges values into the active profile's preference set
// and persists the result. Returns false when logged out, when a value fails
// validation, or when the store write fails.
func (s *AuthService) UpdatePreferences(values map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentProfile == nil {
		return false
	}

	prefs := s.currentProfile.Preferences.Clone()
	if err := prefs.Merge(values); err != nil {
		log.Warn().Err(err).Msg("Preference update rejected")
		return false
	}
	if err := s.profiles.UpdatePreferences(s.currentProfile.ID, prefs); err != nil {
		log.Error().Str("profile_id", s.currentProfile.ID).Err(err).Msg("Could not persist preferences")
		return false
	}
	s.currentProfile.Preferences = prefs
	return true
}

// IsCurrentUserAdmin reports whether the administrative account is logged in.
func (s *AuthService) IsCurrentUserAdmin() bool {
	user := s.CurrentUser()
	return user != nil && user.IsAdmin()
}

// ChangePassword re-verifies the old password and replaces it. The admin
// account's password is fixed for the lifetime of the installation and any
// attempt to change it is refused.
func (s *AuthService) ChangePassword(oldPassword, newPassword string) bool {
	user := s.CurrentUser()
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		log.Warn().Msg("Password change refused for the admin account")
		return false
	}
	if !pw.Verify(oldPassword, user.PasswordHash) {
		log.Warn().Str("username", user.Username).Msg("Password change failed: old password does not match")
		return false
	}
	if ok, reason := pw.ValidateStrength(newPassword); !ok {
		log.Warn().Str("username", user.Username).Str("reason", reason).Msg("Password change failed: weak password")
		return false
	}
	hash, err := pw.Hash(newPassword)
	if err != nil {
		log.Error().Err(err).Msg("Password change failed: could not hash")
		return false
	}
	if err := s.users.ChangePassword(user.ID, hash); err != nil {
		log.Error().Str("username", user.Username).Err(err).Msg("Password change failed: store error")
		return false
	}

	s.mu.Lock()
	if s.currentUser != nil && s.currentUser.ID == user.ID {
		s.currentUser.PasswordHash = hash
	}
	s.mu.Unlock()
	return true
}

// IsUsingDefaultPassword reports whether the current user still has the
// bootstrap password, so callers can prompt a change after login.
func (s *AuthService) IsUsingDefaultPassword() bool {
	user := s.CurrentUser()
	return user != nil && pw.Verify(pw.DefaultPassword, user.PasswordHash)
}

// EnvironmentTypes returns the selectable environment types in display order.
func (s *AuthService) EnvironmentTypes() []string {
	return environment.Kinds()
}

// DefaultPreferencesForEnvironment returns the seed preference set for kind.
func (s *AuthService) DefaultPreferencesForEnvironment(kind string) (models.Preferences, error) {
	if !environment.IsValid(kind) {
		return models.Preferences{}, fmt.Errorf("%w: %q", models.ErrInvalidEnvironment, kind)
	}
	return environment.DefaultPreferences(kind), nil
}

// ValidateSession reports whether token names a live session. An expired
// session is purged from the store before being reported invalid; if it was
// the current one, the in-memory state is cleared too.
func (s *AuthService) ValidateSession(token string) bool {
	_, ok := s.loadValidSession(token)
	return ok
}

// LoadSession restores the current (session, user, profile) triple from a
// stored token, re-resolving the user through the active-only lookup so a
// deactivated account cannot ride an old session back in.
func (s *AuthService) LoadSession(token string) bool {
	session, ok := s.loadValidSession(token)
	if !ok {
		return false
	}

	user, err := s.users.GetUserByID(session.UserID)
	if err != nil {
		log.Warn().Str("session_id", token).Err(err).Msg("Session rejected: owner missing or deactivated")
		if delErr := s.sessions.DeleteSession(token); delErr != nil && !errors.Is(delErr, models.ErrNotFound) {
			log.Warn().Err(delErr).Msg("Could not delete orphaned session")
		}
		return false
	}

	var profile *models.EnvironmentProfile
	if session.ProfileID != "" {
		p, err := s.profiles.GetProfileByID(session.ProfileID)
		if err != nil {
			log.Warn().Str("profile_id", session.ProfileID).Err(err).Msg("Session profile unreadable, falling back to default")
		} else {
			profile = &p
		}
	}
	if profile == nil {
		if p, err := s.profiles.DefaultProfileForUser(user.ID); err == nil {
			profile = &p
		}
	}

	if err := s.sessions.TouchActivity(session.ID); err != nil {
		log.Warn().Err(err).Msg("Could not touch session activity")
	} else {
		session.LastActivity = time.Now().UTC()
	}

	s.mu.Lock()
	s.currentSession = &session
	s.currentUser = &user
	s.currentProfile = profile
	s.mu.Unlock()
	return true
}

// UpdateActivity stamps the current session's activity time.
func (s *AuthService) UpdateActivity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSession == nil {
		return false
	}
	if err := s.sessions.TouchActivity(s.currentSession.ID); err != nil {
		log.Warn().Err(err).Msg("Could not update session activity")
		return false
	}
	s.currentSession.LastActivity = time.Now().UTC()
	return true
}

// BackupDatabase writes a backup of the whole store and prunes old copies
// according to the active profile's retention preference.
func (s *AuthService) BackupDatabase(destDir string) (string, error) {
	path, err := s.backups.BackupNow(destDir)
	if err != nil {
		return "", err
	}
	retention := 5
	if n, ok := s.GetPreference(models.PrefBackupRetention, retention).(int); ok && n > 0 {
		retention = n
	}
	if _, err := s.backups.PruneOld(destDir, retention); err != nil {
		log.Warn().Err(err).Msg("Could not prune old backups")
	}
	return path, nil
}

// ResetCurrent clears the in-memory state without touching the store. It
// exists as a teardown hook for tests and embedders.
func (s *AuthService) ResetCurrent() {
	s.mu.Lock()
	s.currentSession = nil
	s.currentUser = nil
	s.currentProfile = nil
	s.mu.Unlock()
}

// loadValidSession fetches the session for token, purging it when expired.
func (s *AuthService) loadValidSession(token string) (models.Session, bool) {
	session, err := s.sessions.GetSession(token)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Warn().Str("session_id", token).Err(err).Msg("Could not read session")
		}
		return models.Session{}, false
	}
	if !session.Expired(s.timeout) {
		return session, true
	}

	log.Info().Str("session_id", token).Msg("Purging expired session")
	if err := s.sessions.DeleteSession(token); err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Warn().Err(err).Msg("Could not delete expired session")
	}

	s.mu.Lock()
	if s.currentSession != nil && s.currentSession.ID == token {
		s.currentSession = nil
		s.currentUser = nil
		s.currentProfile = nil
	}
	s.mu.Unlock()
	return models.Session{}, false
}

// requireOwnership verifies that profileID belongs to user.
func (s *AuthService) requireOwnership(user *models.User, profileID string) error {
	profile, err := s.profiles.GetProfileByID(profileID)
	if err != nil {
		return err
	}
	if profile.UserID != user.ID {
		return models.ErrNotFound
	}
	return nil
}
