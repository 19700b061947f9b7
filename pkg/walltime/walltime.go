// Package walltime provides the fixed wall-clock timestamp format used on the
// wire and in the reading tables.
//
// Field devices report naive local timestamps with second precision and no
// timezone ("2024-01-01 10:00:00"). The whole system treats these as opaque
// wall-clock points: they are parsed, stored and rendered in the same layout,
// never converted between zones.
package walltime

import (
	"fmt"
	"time"
)

// Layout is the canonical timestamp layout: 24-hour clock, second precision,
// no timezone.
const Layout = "2006-01-02 15:04:05"

// Parse parses a wall-clock timestamp in the canonical layout.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime format: %q, required format: 'YYYY-MM-DD HH:MM:SS'", s)
	}
	return t, nil
}

// Format renders t in the canonical layout.
// Returns an empty string for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// Now returns the current time truncated to second precision, matching the
// resolution of device-reported timestamps.
func Now() time.Time {
	return time.Now().Truncate(time.Second)
}
