package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseEnv carries run-owned lookups and options into the parsers.
type ParseEnv struct {
	// Source overrides the parser's default source tag when set.
	Source string
	// Stations enriches IPMA records with names and coordinates.
	Stations StationDirectory
	// StationFilter restricts IPMA records to these station ids when non-empty.
	StationFilter map[string]struct{}
	// DefaultCity is the Weatherbit place when the payload omits city_name.
	DefaultCity string
}

func (e ParseEnv) source(def string) string {
	if e.Source != "" {
		return e.Source
	}
	return def
}

// Parser converts one upstream payload shape into observations. TryParse
// returns ok=false when the payload does not have the parser's shape.
type Parser interface {
	Name() string
	TryParse(payload any, env ParseEnv) (records []Observation, ok bool)
}

// DefaultParsers returns the supported shapes in dispatch priority order.
func DefaultParsers() []Parser {
	return []Parser{WeatherbitParser{}, ICAOParser{}, IPMAParser{}}
}

// ParsePayload dispatches to the first parser whose shape matches and returns
// its records together with the parser name. Observation times are normalized
// by the parsers. A payload no parser recognizes yields ErrMalformedPayload.
func ParsePayload(payload any, env ParseEnv, parsers ...Parser) ([]Observation, string, error) {
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}
	for _, p := range parsers {
		if records, ok := p.TryParse(payload, env); ok {
			return records, p.Name(), nil
		}
	}
	return nil, "", fmt.Errorf("parse payload of type %T: %w", payload, ErrMalformedPayload)
}

// DecodePayload decodes raw JSON keeping numbers as json.Number so epoch
// timestamps and measurements keep their precision.
func DecodePayload(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w: %w", ErrMalformedPayload, err)
	}
	return payload, nil
}

// toFloat maps a decoded JSON value to an optional number. Empty strings,
// "nan", non-numeric text, NaN and Inf are all absent.
func toFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// firstFloat returns the first present value among keys.
func firstFloat(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		if f := toFloat(m[k]); f != nil {
			return f
		}
	}
	return nil
}

// stringField returns a trimmed string for string or number values.
func stringField(m map[string]any, key string) string {
	switch x := m[key].(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// firstValue returns the first non-empty value among keys, or nil.
func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}
