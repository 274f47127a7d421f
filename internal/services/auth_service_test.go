package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/richardnoragon/budgetauth/internal/environment"
	"github.com/richardnoragon/budgetauth/internal/models"
	"github.com/stretchr/testify/require"
)

func setupAuthTest(t *testing.T) (*AuthService, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	auth := NewAuthService(
		NewUserService(db),
		NewProfileService(db),
		NewSessionService(db),
		NewBackupService(db, t.TempDir()),
		24*time.Hour,
	)
	return auth, db
}

// First run: empty store gets the admin account with the default password
// and one default Personal profile, and the admin password is immutable.
func TestBootstrapFirstRun(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	hasAny, err := auth.users.HasAnyUser()
	require.NoError(t, err)
	require.True(t, hasAny)

	token := auth.Login("admin", "pbi")
	require.NotEmpty(t, token)
	require.True(t, auth.IsCurrentUserAdmin())
	require.True(t, auth.IsUsingDefaultPassword())

	profile := auth.CurrentProfile()
	require.NotNil(t, profile)
	require.Equal(t, "Personal", profile.Name)
	require.True(t, profile.IsDefault)

	require.False(t, auth.ChangePassword("pbi", "new-password"))
	// Still the default password afterwards.
	require.True(t, auth.IsUsingDefaultPassword())
}

func TestBootstrapIsIdempotent(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	require.NoError(t, auth.Bootstrap())

	users, err := auth.GetAllUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestBootstrapDoesNotRecreateAdminAfterDeactivations(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	admin, err := auth.users.GetUserByUsername("admin")
	require.NoError(t, err)
	require.NoError(t, auth.users.Deactivate(admin.ID))

	// Accounts exist even if none are active; no second admin appears.
	require.NoError(t, auth.Bootstrap())
	hasAny, err := auth.users.HasAnyUser()
	require.NoError(t, err)
	require.True(t, hasAny)
	_, err = auth.users.GetUserByUsername("admin")
	require.ErrorIs(t, err, models.ErrNotFound)
}

// New accounts land with an auto-created default Personal profile and the
// login binds the session to it.
func TestCreateUserAndLogin(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	user, err := auth.CreateUser("alice", "s3cret", "alice@example.com", "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	token := auth.Login("alice", "s3cret")
	require.NotEmpty(t, token)
	require.True(t, auth.IsAuthenticated())
	require.False(t, auth.IsCurrentUserAdmin())
	require.False(t, auth.IsUsingDefaultPassword())

	current := auth.CurrentUser()
	require.NotNil(t, current)
	require.Equal(t, user.ID, current.ID)
	require.NotNil(t, current.LastLogin)

	profile := auth.CurrentProfile()
	require.NotNil(t, profile)
	require.Equal(t, "Personal", profile.Name)
	require.Equal(t, environment.Personal, profile.Environment)
	require.True(t, profile.IsDefault)
}

func TestLoginFailureModesAreUniform(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)

	require.Empty(t, auth.Login("nobody", "whatever"))
	require.Empty(t, auth.Login("alice", "wrong"))
	require.False(t, auth.IsAuthenticated())

	alice, err := auth.users.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NoError(t, auth.users.Deactivate(alice.ID))
	require.Empty(t, auth.Login("alice", "s3cret"))
}

// The manager keeps no attempt counter: after any number of failures a
// correct password still works. The retry cap lives in the caller.
func TestNoAttemptCounterInManager(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.Empty(t, auth.Login("alice", "wrong"))
	}
	require.NotEmpty(t, auth.Login("alice", "s3cret"))
}

func TestLoginEvictsPriorSession(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)

	first := auth.Login("alice", "s3cret")
	require.NotEmpty(t, first)
	second := auth.Login("alice", "s3cret")
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)

	require.False(t, auth.ValidateSession(first))
	require.True(t, auth.ValidateSession(second))
}

func TestLogoutIsIdempotent(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	require.NotEmpty(t, auth.Login("admin", "pbi"))
	require.True(t, auth.Logout())
	require.False(t, auth.IsAuthenticated())
	require.Nil(t, auth.CurrentUser())

	// Second logout with no session is a safe no-op.
	require.True(t, auth.Logout())
}

func TestSwitchProfile(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)
	_, err = auth.CreateUser("bob", "s3cret", "", "")
	require.NoError(t, err)

	require.NotEmpty(t, auth.Login("bob", "s3cret"))
	bobProfile := auth.CurrentProfile()
	require.NotNil(t, bobProfile)

	require.NotEmpty(t, auth.Login("alice", "s3cret"))
	work, err := auth.CreateProfile("Work", environment.Production)
	require.NoError(t, err)

	require.True(t, auth.SwitchProfile(work.ID))
	require.Equal(t, work.ID, auth.CurrentProfile().ID)

	// Another user's profile is rejected.
	require.False(t, auth.SwitchProfile(bobProfile.ID))
	require.Equal(t, work.ID, auth.CurrentProfile().ID)

	// The switch survives a session reload.
	token := auth.Login("alice", "s3cret")
	require.NotEmpty(t, token)
	require.True(t, auth.SwitchProfile(work.ID))
	auth.ResetCurrent()
	require.True(t, auth.LoadSession(token))
	require.Equal(t, work.ID, auth.CurrentProfile().ID)
}

func TestSwitchProfileRequiresLogin(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	require.False(t, auth.SwitchProfile("anything"))
}

// Profile churn through the manager: cap at five, delete reopens room, the
// default is always re-elected, the last profile cannot go.
func TestProfileLifecycleThroughManager(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, auth.Login("alice", "s3cret"))

	// One Personal profile exists; four more hit the cap.
	var created []models.EnvironmentProfile
	for _, name := range []string{"P2", "P3", "P4", "P5"} {
		p, err := auth.CreateProfile(name, environment.Development)
		require.NoError(t, err)
		created = append(created, p)
	}
	_, err = auth.CreateProfile("P6", environment.Development)
	require.ErrorIs(t, err, models.ErrProfileLimit)

	require.NoError(t, auth.DeleteProfile(created[0].ID))
	_, err = auth.CreateProfile("P6", environment.Development)
	require.NoError(t, err)

	// Deleting the default (the active Personal profile) re-elects one and
	// repoints the session.
	active := auth.CurrentProfile()
	require.NotNil(t, active)
	require.True(t, active.IsDefault)
	require.NoError(t, auth.DeleteProfile(active.ID))

	profiles := auth.GetUserProfiles()
	require.Len(t, profiles, 4)
	defaults := 0
	for _, p := range profiles {
		if p.IsDefault {
			defaults++
		}
	}
	require.Equal(t, 1, defaults)
	require.NotNil(t, auth.CurrentProfile())

	// Shrink to one profile; the survivor is undeletable.
	for _, p := range auth.GetUserProfiles()[1:] {
		require.NoError(t, auth.DeleteProfile(p.ID))
	}
	remaining := auth.GetUserProfiles()
	require.Len(t, remaining, 1)
	require.ErrorIs(t, auth.DeleteProfile(remaining[0].ID), models.ErrLastProfile)
}

func TestPreferences(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	// Unauthenticated access returns the fallback / fails quietly.
	require.Equal(t, "fallback", auth.GetPreference(models.PrefTheme, "fallback"))
	require.False(t, auth.SetPreference(models.PrefTheme, "dark"))
	require.False(t, auth.UpdatePreferences(map[string]any{models.PrefTheme: "dark"}))

	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)
	token := auth.Login("alice", "s3cret")
	require.NotEmpty(t, token)

	require.Equal(t, "light", auth.GetPreference(models.PrefTheme, "fallback"))
	require.True(t, auth.SetPreference(models.PrefTheme, "dark"))
	require.True(t, auth.UpdatePreferences(map[string]any{
		models.PrefCacheSizeMB: 256,
		"zoom":                 1.25,
	}))
	require.False(t, auth.SetPreference(models.PrefCacheSizeMB, "not-a-number"))

	// Changes persisted: reload the session from the store and re-read.
	auth.ResetCurrent()
	require.True(t, auth.LoadSession(token))
	require.Equal(t, "dark", auth.GetPreference(models.PrefTheme, "fallback"))
	require.Equal(t, 256, auth.GetPreference(models.PrefCacheSizeMB, 0))
	require.Equal(t, 1.25, auth.GetPreference("zoom", 0.0))
}

func TestChangePassword(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "pbi", "", "")
	require.NoError(t, err)

	require.NotEmpty(t, auth.Login("alice", "pbi"))
	require.True(t, auth.IsUsingDefaultPassword())

	require.False(t, auth.ChangePassword("wrong-old", "next"))
	require.False(t, auth.ChangePassword("pbi", "xx")) // too short

	require.True(t, auth.ChangePassword("pbi", "n3w-password"))
	require.False(t, auth.IsUsingDefaultPassword())

	auth.Logout()
	require.Empty(t, auth.Login("alice", "pbi"))
	require.NotEmpty(t, auth.Login("alice", "n3w-password"))
}

func TestSessionExpiry(t *testing.T) {
	auth, db := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)

	token := auth.Login("alice", "s3cret")
	require.NotEmpty(t, token)
	require.True(t, auth.ValidateSession(token))

	backdateSession(t, db, token, 25*time.Hour)

	// The expired session reports invalid, is removed from the store, and
	// the in-memory state is torn down with it.
	require.False(t, auth.ValidateSession(token))
	require.False(t, auth.IsAuthenticated())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM user_sessions WHERE id = ?", token).Scan(&count))
	require.Zero(t, count)

	require.False(t, auth.LoadSession(token))
}

func TestLoadSessionRejectsDeactivatedUser(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())
	_, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)

	token := auth.Login("alice", "s3cret")
	require.NotEmpty(t, token)
	auth.ResetCurrent()

	alice, err := auth.users.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NoError(t, auth.users.Deactivate(alice.ID))

	require.False(t, auth.LoadSession(token))
	// The orphaned session was cleaned up.
	require.False(t, auth.ValidateSession(token))
}

func TestUpdateActivity(t *testing.T) {
	auth, db := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	require.False(t, auth.UpdateActivity())

	token := auth.Login("admin", "pbi")
	require.NotEmpty(t, token)
	backdateSession(t, db, token, 2*time.Hour)

	require.True(t, auth.UpdateActivity())

	var stamp string
	require.NoError(t, db.QueryRow("SELECT last_activity FROM user_sessions WHERE id = ?", token).Scan(&stamp))
	parsed, err := models.ParseTime(stamp)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), parsed, time.Minute)
}

func TestEnvironmentPassthroughs(t *testing.T) {
	auth, _ := setupAuthTest(t)

	require.Equal(t, environment.Kinds(), auth.EnvironmentTypes())

	prefs, err := auth.DefaultPreferencesForEnvironment(environment.Production)
	require.NoError(t, err)
	require.Equal(t, 10, prefs.BackupRetention)

	_, err = auth.DefaultPreferencesForEnvironment("Cloud")
	require.ErrorIs(t, err, models.ErrInvalidEnvironment)
}

func TestBackupDatabase(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	dir := t.TempDir()
	path, err := auth.BackupDatabase(dir)
	require.NoError(t, err)
	require.FileExists(t, path)

	// The backup is a real database holding the admin account.
	backupDB, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer backupDB.Close()

	var count int
	require.NoError(t, backupDB.QueryRow("SELECT COUNT(*) FROM users WHERE username = 'admin'").Scan(&count))
	require.Equal(t, 1, count)
}

func TestAdminAccountIsProtected(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	admin, err := auth.users.GetUserByUsername("admin")
	require.NoError(t, err)

	require.ErrorIs(t, auth.DeactivateUser(admin.ID), models.ErrInvalidInput)
	require.ErrorIs(t, auth.DeleteUser(admin.ID), models.ErrInvalidInput)

	alice, err := auth.CreateUser("alice", "s3cret", "", "")
	require.NoError(t, err)
	require.NoError(t, auth.DeactivateUser(alice.ID))
}

func TestCreateUserValidatesPassword(t *testing.T) {
	auth, _ := setupAuthTest(t)
	require.NoError(t, auth.Bootstrap())

	_, err := auth.CreateUser("alice", "xx", "", "")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = auth.CreateUser("admin", "s3cret", "", "")
	require.ErrorIs(t, err, models.ErrDuplicateUsername)
}
