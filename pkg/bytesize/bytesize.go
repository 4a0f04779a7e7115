// Package bytesize provides human-readable byte size parsing and formatting
// using binary (1024) units.
//
// Examples:
//   - "10GB" = 10 * 1024^3 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "5242880" = 5242880 bytes (no unit = bytes)
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size represents a byte size as int64.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

// Parse parses a human-readable byte size string such as "10GB", "512 MB",
// "1.5GiB" or a raw number of bytes.
func Parse(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Split numeric prefix from unit suffix.
	split := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			split = i
			break
		}
	}

	numPart := strings.TrimSpace(s[:split])
	unitPart := strings.TrimSpace(s[split:])

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}

	mult, err := unitMultiplier(unitPart)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return Size(value * float64(mult)), nil
}

// unitMultiplier resolves a unit suffix to its byte multiplier.
// Units are case-insensitive; IEC forms (KiB, MiB, ...) are accepted.
func unitMultiplier(unit string) (Size, error) {
	switch strings.ToLower(unit) {
	case "", "b", "byte", "bytes":
		return B, nil
	case "k", "kb", "kib":
		return KB, nil
	case "m", "mb", "mib":
		return MB, nil
	case "g", "gb", "gib":
		return GB, nil
	case "t", "tb", "tib":
		return TB, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
}

// Format renders a size in the largest fitting binary unit, with one decimal
// place where the value does not divide cleanly.
func Format(size Size) string {
	switch {
	case size >= TB:
		return formatUnit(size, TB, "TB")
	case size >= GB:
		return formatUnit(size, GB, "GB")
	case size >= MB:
		return formatUnit(size, MB, "MB")
	case size >= KB:
		return formatUnit(size, KB, "KB")
	default:
		return fmt.Sprintf("%dB", int64(size))
	}
}

func formatUnit(size, unit Size, suffix string) string {
	v := float64(size) / float64(unit)
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d%s", int64(v), suffix)
	}
	return fmt.Sprintf("%.1f%s", v, suffix)
}
