package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing.
// It extends standard integer sizes with support for units like KB, MB, GB
// (binary, 1024-based).
//
// Examples:
//   - "5MB" = 5 * 1024 * 1024 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "8GB" = 8 * 1024^3 bytes
//   - "5242880" = 5242880 bytes (raw number still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type ByteSize int64

// Binary (1024) base units.
const (
	byteUnit ByteSize = 1
	kibiByte ByteSize = 1024
	mebiByte ByteSize = 1024 * kibiByte
	gibiByte ByteSize = 1024 * mebiByte
	tebiByte ByteSize = 1024 * gibiByte
)

var byteSizeUnits = map[string]ByteSize{
	"":    byteUnit,
	"b":   byteUnit,
	"k":   kibiByte,
	"kb":  kibiByte,
	"kib": kibiByte,
	"m":   mebiByte,
	"mb":  mebiByte,
	"mib": mebiByte,
	"g":   gibiByte,
	"gb":  gibiByte,
	"gib": gibiByte,
	"t":   tebiByte,
	"tb":  tebiByte,
	"tib": tebiByte,
}

// byteSizePattern matches a number (int or float) followed by an optional unit.
var byteSizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	matches := byteSizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", matches[1], err)
	}

	multiplier, ok := byteSizeUnits[strings.ToLower(matches[2])]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", matches[2])
	}

	return ByteSize(value * float64(multiplier)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a number (bytes) for backwards compatibility
		var raw int64
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*b = ByteSize(raw)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes as int64.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// String returns a human-readable string representation.
// Uses the largest unit that yields a value >= 1.
func (b ByteSize) String() string {
	if b == 0 {
		return "0B"
	}

	negative := b < 0
	if negative {
		b = -b
	}

	var result string
	switch {
	case b >= tebiByte:
		result = formatByteFloat(float64(b)/float64(tebiByte), "TB")
	case b >= gibiByte:
		result = formatByteFloat(float64(b)/float64(gibiByte), "GB")
	case b >= mebiByte:
		result = formatByteFloat(float64(b)/float64(mebiByte), "MB")
	case b >= kibiByte:
		result = formatByteFloat(float64(b)/float64(kibiByte), "KB")
	default:
		result = fmt.Sprintf("%dB", b)
	}

	if negative {
		return "-" + result
	}
	return result
}

func formatByteFloat(value float64, unit string) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d%s", int64(value), unit)
	}
	formatted := strings.TrimRight(fmt.Sprintf("%.2f", value), "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted + unit
}
