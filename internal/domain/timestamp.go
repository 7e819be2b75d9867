package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// zonedLayouts carry an explicit offset: "Z", "+01:00", "+0100" or "+01".
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07",
	"20060102T150405Z0700",
}

// naiveLayouts carry no offset and are read as UTC. Fractional seconds are
// accepted after any seconds field.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// Instant is a normalized observation time.
type Instant struct {
	Time time.Time
	// Degraded reports that the input was unrecognized and Time is the wall clock.
	Degraded bool
}

// NormalizeTimestamp converts a feed timestamp into a UTC instant truncated to
// whole seconds. It accepts time.Time, epoch seconds (any numeric kind or
// json.Number) and ISO-8601 style strings. Anything else yields the current
// time with Degraded set; it never fails.
func NormalizeTimestamp(v any) Instant {
	if t, ok := parseInstant(v); ok {
		return Instant{Time: t.UTC().Truncate(time.Second)}
	}
	return Instant{Time: clock.Now().UTC().Truncate(time.Second), Degraded: true}
}

func parseInstant(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, false
		}
		return *x, true
	case int:
		return time.Unix(int64(x), 0), true
	case int64:
		return time.Unix(x, 0), true
	case float64:
		return epochFloat(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return time.Unix(n, 0), true
		}
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return epochFloat(f)
	case string:
		return parseTimestampString(x)
	default:
		return time.Time{}, false
	}
}

func epochFloat(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
