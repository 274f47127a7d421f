package models

import (
	"encoding/json"
	"fmt"
)

// Preference keys recognized by the editor. Anything else round-trips
// through the Extra bag untouched.
const (
	PrefTheme           = "theme"
	PrefShowWelcome     = "show_welcome"
	PrefDiagnosticLevel = "diagnostic_level"
	PrefCacheEnabled    = "cache_enabled"
	PrefCacheSizeMB     = "cache_size_mb"
	PrefBackupRetention = "backup_retention"
	PrefAutoBackup      = "auto_backup"
)

// Preferences is the per-profile configuration set. Known keys are typed and
// validated on Set; unrecognized keys live in Extra so data written by other
// builds passes through without loss.
type Preferences struct {
	Theme           string
	ShowWelcome     bool
	DiagnosticLevel string
	CacheEnabled    bool
	CacheSizeMB     int
	BackupRetention int
	AutoBackup      bool
	Extra           map[string]any
}

// Get returns the value stored under key and whether the key is set. Known
// keys always report as set.
func (p Preferences) Get(key string) (any, bool) {
	switch key {
	case PrefTheme:
		return p.Theme, true
	case PrefShowWelcome:
		return p.ShowWelcome, true
	case PrefDiagnosticLevel:
		return p.DiagnosticLevel, true
	case PrefCacheEnabled:
		return p.CacheEnabled, true
	case PrefCacheSizeMB:
		return p.CacheSizeMB, true
	case PrefBackupRetention:
		return p.BackupRetention, true
	case PrefAutoBackup:
		return p.AutoBackup, true
	}
	v, ok := p.Extra[key]
	return v, ok
}

// Set stores value under key, validating the type of known keys. Unknown
// keys land in Extra unchecked.
func (p *Preferences) Set(key string, value any) error {
	switch key {
	case PrefTheme, PrefDiagnosticLevel:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidInput, key, value)
		}
		if key == PrefTheme {
			p.Theme = s
		} else {
			p.DiagnosticLevel = s
		}
	case PrefShowWelcome, PrefCacheEnabled, PrefAutoBackup:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s expects a bool, got %T", ErrInvalidInput, key, value)
		}
		switch key {
		case PrefShowWelcome:
			p.ShowWelcome = b
		case PrefCacheEnabled:
			p.CacheEnabled = b
		case PrefAutoBackup:
			p.AutoBackup = b
		}
	case PrefCacheSizeMB, PrefBackupRetention:
		n, ok := toInt(value)
		if !ok {
			return fmt.Errorf("%w: %s expects an integer, got %T", ErrInvalidInput, key, value)
		}
		if key == PrefCacheSizeMB {
			p.CacheSizeMB = n
		} else {
			p.BackupRetention = n
		}
	default:
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[key] = value
	}
	return nil
}

// Clone returns a copy whose Extra map is independent of the receiver's.
func (p Preferences) Clone() Preferences {
	out := p
	if p.Extra != nil {
		out.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Merge applies every entry of values via Set. The first bad entry aborts
// the merge and nothing before it is rolled back; callers persist only on
// success.
func (p *Preferences) Merge(values map[string]any) error {
	for k, v := range values {
		if err := p.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// toInt accepts the integer shapes that reach Set: native ints from callers
// and float64 from decoded JSON.
func toInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// MarshalJSON flattens known keys and Extra into a single object.
func (p Preferences) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+7)
	for k, v := range p.Extra {
		m[k] = v
	}
	m[PrefTheme] = p.Theme
	m[PrefShowWelcome] = p.ShowWelcome
	m[PrefDiagnosticLevel] = p.DiagnosticLevel
	m[PrefCacheEnabled] = p.CacheEnabled
	m[PrefCacheSizeMB] = p.CacheSizeMB
	m[PrefBackupRetention] = p.BackupRetention
	m[PrefAutoBackup] = p.AutoBackup
	return json.Marshal(m)
}

// UnmarshalJSON routes known keys into the typed fields and everything else
// into Extra.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = Preferences{}
	for k, v := range m {
		if err := p.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Encode renders the set as the JSON blob stored in the profiles table.
func (p Preferences) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePreferences parses a stored blob. Malformed data is reported as a
// DataError so collection reads can skip the row instead of failing outright.
func DecodePreferences(blob string) (Preferences, error) {
	var p Preferences
	if blob == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return Preferences{}, &DataError{Field: "preferences", Err: err}
	}
	return p, nil
}
