package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339, RFC3339Nano, a bare date in loc, unix seconds or
// unix milliseconds.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// anything past year 33658 in seconds is really milliseconds
		if ts >= 1e12 {
			return time.UnixMilli(ts).In(loc), true
		}
		return time.Unix(ts, 0).In(loc), true
	}
	return time.Time{}, false
}
