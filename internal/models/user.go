package models

import (
	"strings"
	"time"
)

// AdminUsername is the reserved administrative account created on first run.
// It is permanently exempt from password change, deactivation and deletion.
const AdminUsername = "admin"

// User represents a local account in the workbook editor.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Never expose this to the client
	Email        string     `json:"email,omitempty"`
	FullName     string     `json:"fullName,omitempty"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// IsAdmin reports whether this is the reserved administrative account.
func (u User) IsAdmin() bool {
	return strings.EqualFold(u.Username, AdminUsername)
}
