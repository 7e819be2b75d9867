package domain

import (
	"fmt"
	"strings"
)

const (
	SourceGeoNamesICAO = "GEONAMES_ICAO"
	unknownICAO        = "UNKNOWN_ICAO"

	// RequestedICAOKey is added by the fetcher to each response so the place
	// survives responses that omit the ICAO field.
	RequestedICAOKey = "_requested_icao"
)

// ICAOParser handles GeoNames weatherIcaoJSON responses, either a single
// object or a list of per-code responses.
type ICAOParser struct{}

func (ICAOParser) Name() string { return "geonames_icao" }

func (ICAOParser) TryParse(payload any, env ParseEnv) ([]Observation, bool) {
	responses := icaoResponses(payload)
	if responses == nil {
		return nil, false
	}

	records := make([]Observation, 0, len(responses))
	for _, resp := range responses {
		obs, ok := resp["weatherObservation"].(map[string]any)
		if !ok {
			// GeoNames error bodies carry "status" instead.
			continue
		}
		records = append(records, parseICAOObservation(resp, obs, env))
	}
	return records, true
}

// icaoResponses returns the response objects when at least one of them carries
// a weatherObservation, nil otherwise.
func icaoResponses(payload any) []map[string]any {
	var items []any
	switch x := payload.(type) {
	case map[string]any:
		items = []any{x}
	case []any:
		items = x
	default:
		return nil
	}

	var out []map[string]any
	matched := false
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["weatherObservation"].(map[string]any); ok {
			matched = true
		}
		out = append(out, m)
	}
	if !matched {
		return nil
	}
	return out
}

func parseICAOObservation(resp, obs map[string]any, env ParseEnv) Observation {
	ts := NormalizeTimestamp(firstValue(obs, "datetime", "observationTime", "time"))

	place := strings.ToUpper(stringField(obs, "ICAO"))
	if place == "" {
		place = strings.ToUpper(stringField(resp, RequestedICAOKey))
	}
	if place == "" {
		place = unknownICAO
	}

	return Observation{
		Source:        env.source(SourceGeoNamesICAO),
		ObservedAt:    ts.Time,
		Degraded:      ts.Degraded,
		Temperature:   toFloat(obs["temperature"]),
		Humidity:      toFloat(obs["humidity"]),
		WindSpeed:     toFloat(obs["windSpeed"]),
		Pressure:      firstFloat(obs, "hectoPascAltimeter", "seaLevelPressure", "pressure"),
		Precipitation: toFloat(obs["precipitation"]),
		Place:         place,
		Latitude:      toFloat(obs["lat"]),
		Longitude:     toFloat(obs["lng"]),
	}
}

// METARReports returns "METAR <code>: <raw>" lines for every response that
// carries the raw observation text, for inclusion in the run report.
func METARReports(payload any) []string {
	var lines []string
	for _, resp := range icaoResponses(payload) {
		obs, ok := resp["weatherObservation"].(map[string]any)
		if !ok {
			continue
		}
		raw := stringField(obs, "observation")
		if raw == "" {
			continue
		}
		code := stringField(obs, "ICAO")
		if code == "" {
			code = stringField(resp, RequestedICAOKey)
		}
		lines = append(lines, fmt.Sprintf("METAR %s: %s", code, raw))
	}
	return lines
}
