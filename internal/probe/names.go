package probe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FilenamePrefix is the fixed prefix shared by every document identifier.
const FilenamePrefix = "EFTA"

// MaxNumber is the largest number that fits the eight-digit filename field.
const MaxNumber int64 = 99_999_999

var (
	filenamePattern = regexp.MustCompile(`(?i)EFTA0*(\d+)\.(mp4|mov)`)
	numberPattern   = regexp.MustCompile(`(?i)^(?:EFTA)?0*(\d+)$`)
)

// Filename renders the canonical filename for a number and extension,
// zero-padding the number to eight digits.
func Filename(number int64, variant string) string {
	return fmt.Sprintf("%s%08d%s", FilenamePrefix, number, variant)
}

// ParseFilename extracts the number and lower-cased extension from a
// filename such as "EFTA01648557.mp4".
func ParseFilename(name string) (int64, string, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, "." + strings.ToLower(m[2]), true
}

// ParseNumber accepts either a bare integer or the prefixed form
// ("EFTA01648557") and returns the numeric value.
func ParseNumber(raw string) (int64, error) {
	m := numberPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid document number %q", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse document number %q: %w", raw, err)
	}
	return n, nil
}

// ItemFromFilename builds a WorkItem for a known filename and URL, filling in
// the numeric fields when the name follows the canonical pattern.
func ItemFromFilename(name, url string) WorkItem {
	item := WorkItem{ID: name, URL: url}
	if n, ext, ok := ParseFilename(name); ok {
		item.Number = n
		item.Numbered = true
		item.Variant = ext
	}
	return item
}

// FormatBytes renders a byte count using binary units, e.g. "1.5 MB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}
