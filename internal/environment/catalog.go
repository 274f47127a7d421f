// Package environment is the static registry of environment types and their
// baseline preference sets.
package environment

import "github.com/richardnoragon/budgetauth/internal/models"

// The five environment types, in the order pickers present them.
const (
	Development = "Development"
	Testing     = "Testing"
	Staging     = "Staging"
	Production  = "Production"
	Personal    = "Personal"
)

var kinds = [...]string{Development, Testing, Staging, Production, Personal}

// Kinds returns the environment types in display order.
func Kinds() []string {
	out := make([]string, len(kinds))
	copy(out, kinds[:])
	return out
}

// IsValid reports whether name is a known environment type.
func IsValid(name string) bool {
	for _, k := range kinds {
		if k == name {
			return true
		}
	}
	return false
}

// DefaultPreferences returns the baseline preference set for an environment
// type, with per-type overrides applied. The result is a fresh value on
// every call.
func DefaultPreferences(kind string) models.Preferences {
	p := models.Preferences{
		Theme:           "default",
		ShowWelcome:     true,
		DiagnosticLevel: "standard",
		CacheEnabled:    true,
		CacheSizeMB:     100,
		BackupRetention: 5,
		AutoBackup:      true,
	}

	switch kind {
	case Development:
		p.DiagnosticLevel = "debug"
		p.CacheEnabled = false
		p.BackupRetention = 3
	case Testing:
		p.DiagnosticLevel = "detailed"
		p.CacheEnabled = false
		p.ShowWelcome = false
	case Staging:
		p.CacheSizeMB = 200
	case Production:
		p.DiagnosticLevel = "minimal"
		p.ShowWelcome = false
		p.CacheSizeMB = 500
		p.BackupRetention = 10
	case Personal:
		p.Theme = "light"
	}
	return p
}
