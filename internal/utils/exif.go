package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseExifTimestamp parses the timestamp formats that show up in photo
// metadata. EXIF's native "2006:01:02 15:04:05" form is normalized to a
// standard date-time before parsing.
func ParseExifTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// Normalize "YYYY:MM:DD HH:MM:SS" (with optional offset suffix) to ISO form.
	normalized := value
	if len(normalized) >= 10 && normalized[4] == ':' && normalized[7] == ':' {
		normalized = normalized[:4] + "-" + normalized[5:7] + "-" + normalized[8:]
	}
	normalized = strings.Replace(normalized, " ", "T", 1)

	// Try multiple timestamp formats in order of likelihood
	formats := []string{
		time.RFC3339,              // "2006-01-02T15:04:05Z07:00" (with timezone)
		"2006-01-02T15:04:05",     // ISO 8601 without timezone
		"2006-01-02T15:04:05-07:00",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, normalized)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, lastErr)
}

// DMSToDecimal converts a degree/minute/second triple to decimal degrees.
func DMSToDecimal(deg, min, sec float64) float64 {
	return deg + min/60 + sec/3600
}

// ToFloat coerces the loosely typed values an extraction tool reports
// (float64 from JSON numbers, numeric strings, integers) into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToDMS interprets v as a [degrees, minutes, seconds] triple when the
// extraction tool reports GPS as an array.
func ToDMS(v any) ([3]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < 3 {
		return [3]float64{}, false
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		f, ok := ToFloat(arr[i])
		if !ok {
			return [3]float64{}, false
		}
		out[i] = f
	}
	return out, true
}

// ToString coerces a metadata value to its string form, if it has one.
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), s != ""
}
