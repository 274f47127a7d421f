package models

import "time"

// DefaultSessionTimeout is how long a session stays valid after its last
// recorded activity.
const DefaultSessionTimeout = 24 * time.Hour

// Session binds a logged-in user to their currently selected profile. The ID
// doubles as the opaque token handed to callers.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ProfileID    string    `json:"profileId,omitempty"` // empty when the user has no profiles
	LoginAt      time.Time `json:"loginAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Expired reports whether the session's last activity is older than timeout.
func (s Session) Expired(timeout time.Duration) bool {
	return time.Since(s.LastActivity) > timeout
}
