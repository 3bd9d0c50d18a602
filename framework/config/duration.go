package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// durationPattern matches the accepted duration syntax: a positive integer
// followed by a unit of seconds, minutes, hours or days.
var durationPattern = regexp.MustCompile(`^([0-9]+)([smhd])$`)

// ParseDuration parses a duration string of the form N[smhd].
// Unlike time.ParseDuration it accepts the "d" (day) unit and rejects
// fractional or compound values, matching the configuration schema.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("duration %q does not match N[smhd]", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}

	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("duration %q: unknown unit", s)
}

// ValidDuration reports whether s matches the accepted duration syntax.
func ValidDuration(s string) bool {
	_, err := ParseDuration(s)
	return err == nil
}

// DurationOr parses s, falling back to def when s is empty or invalid.
// Validation rejects invalid values long before this runs; the fallback
// keeps callers total.
func DurationOr(s string, def time.Duration) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
