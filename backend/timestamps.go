package backend

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// StampLayout is the layout written into updated_at/created_at.
// Microsecond precision matches what Postgres keeps, so a pushed stamp
// reads back equal and does not bounce on the next pass.
const StampLayout = "2006-01-02T15:04:05.000000Z07:00"

var stampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// NowStamp returns the current UTC time formatted for a timestamp column
func NowStamp() string {
	return FormatStamp(time.Now())
}

// FormatStamp formats t for a timestamp column
func FormatStamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(StampLayout)
}

// ParseStamp parses a stored timestamp. Zone-less values are read as UTC.
// Bare integers are unix seconds.
func ParseStamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// CompareStamps orders two timestamps: -1 if a is older, 1 if a is newer,
// 0 if they denote the same instant. A value that does not parse sorts
// before any value that does; two unparseable values are equal.
func CompareStamps(a, b string) int {
	ta, okA := ParseStamp(a)
	tb, okB := ParseStamp(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	case ta.Before(tb):
		return -1
	case ta.After(tb):
		return 1
	default:
		return 0
	}
}

// IsNewer reports whether a is strictly newer than b
func IsNewer(a, b string) bool {
	return CompareStamps(a, b) > 0
}

// StampString reads a timestamp column of any scalar type as text.
// Whole numbers become unix seconds; anything that is not a scalar is "".
func StampString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return FormatStamp(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
