package domain

import "sort"

const (
	SourceIPMA = "IPMA"

	// ipmaMissing is the IPMA sentinel for "not measured".
	ipmaMissing = -99.0
)

// IPMAParser handles {timestamp: {stationId: {values}}} observation payloads.
type IPMAParser struct{}

func (IPMAParser) Name() string { return "ipma" }

func (IPMAParser) TryParse(payload any, env ParseEnv) ([]Observation, bool) {
	root, ok := payload.(map[string]any)
	if !ok || len(root) == 0 {
		return nil, false
	}

	timestamps := make([]string, 0, len(root))
	recognized := false
	for key, v := range root {
		if _, ok := v.(map[string]any); !ok {
			return nil, false
		}
		if _, ok := parseTimestampString(key); ok {
			recognized = true
		}
		timestamps = append(timestamps, key)
	}
	if !recognized {
		return nil, false
	}
	sort.Strings(timestamps)

	var records []Observation
	for _, key := range timestamps {
		ts := NormalizeTimestamp(key)
		stations := root[key].(map[string]any)

		ids := make([]string, 0, len(stations))
		for id := range stations {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			values, ok := stations[id].(map[string]any)
			if !ok {
				continue
			}
			if len(env.StationFilter) > 0 {
				if _, keep := env.StationFilter[id]; !keep {
					continue
				}
			}
			records = append(records, parseIPMAObservation(id, ts, values, env))
		}
	}
	return records, true
}

func parseIPMAObservation(id string, ts Instant, values map[string]any, env ParseEnv) Observation {
	meta, _ := env.Stations.Lookup(id)
	return Observation{
		Source:        env.source(SourceIPMA),
		ObservedAt:    ts.Time,
		Degraded:      ts.Degraded,
		Temperature:   ipmaFloat(values["temperatura"]),
		Humidity:      ipmaFloat(values["humidade"]),
		WindSpeed:     ipmaFloat(values["intensidadeVento"]),
		Pressure:      ipmaFloat(values["pressao"]),
		Precipitation: ipmaFloat(values["precAcumulada"]),
		Place:         env.Stations.Place(id),
		Latitude:      meta.Latitude,
		Longitude:     meta.Longitude,
	}
}

func ipmaFloat(v any) *float64 {
	f := toFloat(v)
	if f == nil || *f == ipmaMissing {
		return nil
	}
	return f
}
