package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeAny accepts RFC3339 strings, unix seconds or unix milliseconds.
func ParseTimeAny(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		if ts, err := strconv.ParseInt(x, 10, 64); err == nil && ts > 1e11 {
			return time.UnixMilli(ts), true
		}
		return ParseTime(x)
	case float64:
		if x <= 0 {
			return time.Time{}, false
		}
		if x > 1e11 {
			return time.UnixMilli(int64(x)), true
		}
		return time.Unix(int64(x), 0), true
	case int64:
		return ParseTimeAny(float64(x))
	case time.Time:
		return x, !x.IsZero()
	default:
		return time.Time{}, false
	}
}
