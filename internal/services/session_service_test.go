package services

import (
	"testing"
	"time"

	"github.com/richardnoragon/budgetauth/internal/models"
	"github.com/stretchr/testify/require"
)

func setupSessionTest(t *testing.T) (*SessionService, models.User) {
	t.Helper()
	db := setupDB(t)
	users := NewUserService(db)
	user := mustCreateUser(t, users, "alice", "s3cret")
	return NewSessionService(db), user
}

func TestCreateSessionEvictsPriorSession(t *testing.T) {
	sessions, user := setupSessionTest(t)

	first, err := sessions.CreateSession(user.ID, "")
	require.NoError(t, err)
	second, err := sessions.CreateSession(user.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	// At most one live session per user: the first token is gone.
	_, err = sessions.GetSession(first.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = sessions.GetSession(second.ID)
	require.NoError(t, err)
}

func TestSessionsOfDifferentUsersCoexist(t *testing.T) {
	db := setupDB(t)
	users := NewUserService(db)
	sessions := NewSessionService(db)
	alice := mustCreateUser(t, users, "alice", "s3cret")
	bob := mustCreateUser(t, users, "bob", "s3cret")

	aliceSession, err := sessions.CreateSession(alice.ID, "")
	require.NoError(t, err)
	_, err = sessions.CreateSession(bob.ID, "")
	require.NoError(t, err)

	_, err = sessions.GetSession(aliceSession.ID)
	require.NoError(t, err)
}

func TestTouchActivity(t *testing.T) {
	sessions, user := setupSessionTest(t)

	session, err := sessions.CreateSession(user.ID, "")
	require.NoError(t, err)
	backdateSession(t, sessions.db, session.ID, 2*time.Hour)

	require.NoError(t, sessions.TouchActivity(session.ID))

	touched, err := sessions.GetSession(session.ID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), touched.LastActivity, time.Minute)

	require.ErrorIs(t, sessions.TouchActivity("nope"), models.ErrNotFound)
}

func TestSetCurrentProfile(t *testing.T) {
	db := setupDB(t)
	users := NewUserService(db)
	profiles := NewProfileService(db)
	sessions := NewSessionService(db)
	user := mustCreateUser(t, users, "alice", "s3cret")
	profile, err := profiles.CreateProfile(user.ID, "Personal", "Personal", nil)
	require.NoError(t, err)

	session, err := sessions.CreateSession(user.ID, "")
	require.NoError(t, err)
	require.Empty(t, session.ProfileID)

	require.NoError(t, sessions.SetCurrentProfile(session.ID, profile.ID))

	updated, err := sessions.GetSession(session.ID)
	require.NoError(t, err)
	require.Equal(t, profile.ID, updated.ProfileID)
}

func TestPurgeExpired(t *testing.T) {
	db := setupDB(t)
	users := NewUserService(db)
	sessions := NewSessionService(db)
	alice := mustCreateUser(t, users, "alice", "s3cret")
	bob := mustCreateUser(t, users, "bob", "s3cret")
	carol := mustCreateUser(t, users, "carol", "s3cret")

	stale, err := sessions.CreateSession(alice.ID, "")
	require.NoError(t, err)
	backdateSession(t, db, stale.ID, 25*time.Hour)

	fresh, err := sessions.CreateSession(bob.ID, "")
	require.NoError(t, err)

	// A session whose activity timestamp cannot be parsed is purged too.
	broken, err := sessions.CreateSession(carol.ID, "")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE user_sessions SET last_activity = 'garbage' WHERE id = ?", broken.ID)
	require.NoError(t, err)

	purged, err := sessions.PurgeExpired(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, purged)

	_, err = sessions.GetSession(stale.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = sessions.GetSession(fresh.ID)
	require.NoError(t, err)
}

func TestDeleteSession(t *testing.T) {
	sessions, user := setupSessionTest(t)

	session, err := sessions.CreateSession(user.ID, "")
	require.NoError(t, err)

	require.NoError(t, sessions.DeleteSession(session.ID))
	require.ErrorIs(t, sessions.DeleteSession(session.ID), models.ErrNotFound)
}
