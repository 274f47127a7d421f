package models

import (
	"fmt"
	"strings"
	"time"
)

// timeLayouts are tried in order when decoding stored timestamps. The first
// entry is the canonical write format; the rest accept rows written by older
// builds of the editor.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatTime renders t in the canonical stored form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime decodes a stored timestamp, accepting a small set of legacy
// layouts. A value matching none of them is reported as a DataError.
func ParseTime(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &DataError{Field: "timestamp", Err: fmt.Errorf("unrecognized value %q", value)}
}
