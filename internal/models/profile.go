package models

import "time"

// MaxProfilesPerUser caps how many environment profiles one account may hold.
const MaxProfilesPerUser = 5

// EnvironmentProfile is a named bundle of preferences owned by one user and
// tagged with an environment type. A user with at least one profile always
// has exactly one default.
type EnvironmentProfile struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Name        string      `json:"name"`
	Environment string      `json:"environment"`
	Preferences Preferences `json:"preferences"`
	IsDefault   bool        `json:"isDefault"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
