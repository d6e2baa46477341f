package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that supports human-readable parsing.
// It extends Go's standard duration format with support for:
//   - d: days (24 hours)
//   - w: weeks (7 days)
//
// Examples:
//   - "30d" = 30 days
//   - "2w" = 2 weeks
//   - "1w2d12h" = 1 week, 2 days, 12 hours
//   - "720h" = 720 hours (standard Go format still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type Duration time.Duration

// extendedUnitPattern matches day and week components, which Go's parser
// does not understand. They are converted to hours before delegation.
var extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|w|days?|d)`)

// ParseDuration parses a human-readable duration string.
// Supports standard Go duration format plus 'd' (days) and 'w' (weeks).
func ParseDuration(s string) (Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	var totalHours int64
	remaining := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := extendedUnitPattern.FindStringSubmatch(match)
		value, _ := strconv.ParseInt(parts[1], 10, 64)
		if strings.HasPrefix(strings.ToLower(parts[2]), "w") {
			totalHours += value * 7 * 24
		} else {
			totalHours += value * 24
		}
		return ""
	})

	// Go's duration parser does not accept spaces between components.
	remaining = strings.Join(strings.Fields(remaining), "")

	var durationStr string
	if totalHours > 0 {
		durationStr = fmt.Sprintf("%dh", totalHours)
	}
	durationStr += remaining
	if durationStr == "" {
		durationStr = "0s"
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}

	if negative {
		d = -d
	}
	return Duration(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a number (nanoseconds) for backwards compatibility
		var ns int64
		if err := json.Unmarshal(data, &ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns a human-readable string representation.
// Weeks and days are pulled out; the remainder uses Go's standard format.
func (d Duration) String() string {
	dur := time.Duration(d)
	if dur == 0 {
		return "0s"
	}

	negative := dur < 0
	if negative {
		dur = -dur
	}

	weeks := dur / (7 * 24 * time.Hour)
	dur -= weeks * 7 * 24 * time.Hour
	days := dur / (24 * time.Hour)
	dur -= days * 24 * time.Hour

	var result string
	if weeks > 0 {
		result += fmt.Sprintf("%dw", weeks)
	}
	if days > 0 {
		result += fmt.Sprintf("%dd", days)
	}
	if dur > 0 {
		result += dur.String()
	}

	if result == "" {
		return time.Duration(d).String()
	}
	if negative {
		return "-" + result
	}
	return result
}
