package domain

import (
	"fmt"
	"time"
)

// Observation is the canonical weather record every parser emits and every
// backend stores. Nil measurement pointers mean the feed did not report the value.
type Observation struct {
	Source        string    `json:"source"`
	ObservedAt    time.Time `json:"observed_at"`
	Temperature   *float64  `json:"temperature"`
	Humidity      *float64  `json:"humidity"`
	WindSpeed     *float64  `json:"wind_speed"`
	Pressure      *float64  `json:"pressure"`
	Precipitation *float64  `json:"precipitation"`
	Place         string    `json:"place"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`

	// Degraded is set when ObservedAt could not be parsed from the feed and
	// was replaced by the ingestion wall clock.
	Degraded bool `json:"degraded,omitempty"`
}

// Granularity selects how precisely records are deduplicated.
type Granularity string

const (
	GranularityTimestamp Granularity = "timestamp"
	GranularityDate      Granularity = "date"
	GranularityNone      Granularity = "none"
)

// ParseGranularity accepts the PIPELINE_DEDUP_MODE spellings. Empty means timestamp.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "", "timestamp", "ts":
		return GranularityTimestamp, nil
	case "date", "day":
		return GranularityDate, nil
	case "none", "off":
		return GranularityNone, nil
	default:
		return "", fmt.Errorf("unknown dedup mode %q", s)
	}
}

// DedupKey is the time component of a batch key. Unix holds the exact instant
// for timestamp granularity, UTC midnight for date granularity and 0 for none.
type DedupKey struct {
	Granularity Granularity
	Unix        int64
}

// KeyFor derives the dedup key of an already-normalized instant.
func KeyFor(t time.Time, g Granularity) DedupKey {
	t = t.UTC()
	switch g {
	case GranularityDate:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return DedupKey{Granularity: g, Unix: day.Unix()}
	case GranularityNone:
		return DedupKey{Granularity: g}
	default:
		return DedupKey{Granularity: GranularityTimestamp, Unix: t.Unix()}
	}
}

// Time returns the key's instant (or day start) in UTC.
func (k DedupKey) Time() time.Time {
	return time.Unix(k.Unix, 0).UTC()
}

// Window returns the half-open [from, to) interval matched by a date key.
// For timestamp keys from == to and callers should use equality.
func (k DedupKey) Window() (time.Time, time.Time) {
	from := k.Time()
	if k.Granularity == GranularityDate {
		return from, from.AddDate(0, 0, 1)
	}
	return from, from
}

func (k DedupKey) String() string {
	switch k.Granularity {
	case GranularityDate:
		return k.Time().Format(time.DateOnly)
	case GranularityNone:
		return "*"
	default:
		return k.Time().Format(time.DateTime)
	}
}

// BatchKey identifies one batch within a run.
type BatchKey struct {
	Source string
	Dedup  DedupKey
}

func (k BatchKey) String() string {
	return k.Source + "@" + k.Dedup.String()
}

// Batch is a non-empty, emission-ordered group of observations sharing a key.
type Batch struct {
	Key     BatchKey
	Records []Observation
}
