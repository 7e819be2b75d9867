package domain

const (
	SourceWeatherbit = "WEATHERBIT"
	unknownCity      = "UNKNOWN_CITY"
)

// WeatherbitParser handles {"data": [...]} current-conditions payloads.
type WeatherbitParser struct{}

func (WeatherbitParser) Name() string { return "weatherbit" }

func (WeatherbitParser) TryParse(payload any, env ParseEnv) ([]Observation, bool) {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := root["data"].([]any)
	if !ok || len(data) == 0 {
		return nil, false
	}
	if _, ok := data[0].(map[string]any); !ok {
		return nil, false
	}

	records := make([]Observation, 0, len(data))
	for _, item := range data {
		obs, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, parseWeatherbitObservation(obs, env))
	}
	return records, true
}

func parseWeatherbitObservation(obs map[string]any, env ParseEnv) Observation {
	ts := NormalizeTimestamp(firstValue(obs, "ob_time", "ts"))

	place := stringField(obs, "city_name")
	if place == "" {
		place = env.DefaultCity
	}
	if place == "" {
		place = unknownCity
	}

	return Observation{
		Source:        env.source(SourceWeatherbit),
		ObservedAt:    ts.Time,
		Degraded:      ts.Degraded,
		Temperature:   toFloat(obs["temp"]),
		Humidity:      toFloat(obs["rh"]),
		WindSpeed:     toFloat(obs["wind_spd"]),
		Pressure:      toFloat(obs["pres"]),
		Precipitation: toFloat(obs["precip"]),
		Place:         place,
		Latitude:      toFloat(obs["lat"]),
		Longitude:     toFloat(obs["lon"]),
	}
}
