package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ipmaTwoStations = `{
		"2024-05-01T10:00": {
			"1210702": {"temperatura": 17.2, "humidade": 60, "intensidadeVento": 3.1, "pressao": 1015.2, "precAcumulada": 0},
			"1200545": {"temperatura": 15.0, "humidade": -99.0, "intensidadeVento": 2.0, "pressao": -99.0}
		}
	}`

	weatherbitPayload = `{
		"count": 1,
		"data": [{
			"ob_time": "2024-05-01 10:00",
			"ts": 1714557600,
			"temp": 18.5,
			"rh": 72,
			"wind_spd": 4.2,
			"pres": 1012,
			"city_name": "Maia",
			"lat": 41.23,
			"lon": -8.62
		}]
	}`

	icaoPayload = `[
		{"_requested_icao": "LPPR", "weatherObservation": {
			"ICAO": "LPPR", "datetime": "2024-05-01 10:00:00", "temperature": "16", "humidity": 77,
			"windSpeed": "05", "hectoPascAltimeter": 1016, "lat": 41.23, "lng": -8.68,
			"observation": "LPPR 011000Z 31005KT CAVOK 16/12 Q1016"
		}},
		{"_requested_icao": "XXXX", "status": {"message": "no observation found", "value": 15}}
	]`
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	payload, err := DecodePayload([]byte(s))
	require.NoError(t, err)
	return payload
}

func ptr(f float64) *float64 { return &f }

func TestParsePayload_IPMA(t *testing.T) {
	records, parser, err := ParsePayload(mustDecode(t, ipmaTwoStations), ParseEnv{})
	require.NoError(t, err)
	assert.Equal(t, "ipma", parser)
	require.Len(t, records, 2)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	want := []Observation{
		{Source: SourceIPMA, ObservedAt: at, Temperature: ptr(15.0), WindSpeed: ptr(2.0), Place: "1200545"},
		{
			Source: SourceIPMA, ObservedAt: at, Temperature: ptr(17.2), Humidity: ptr(60), WindSpeed: ptr(3.1),
			Pressure: ptr(1015.2), Precipitation: ptr(0), Place: "1210702",
		},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePayload_IPMA_StationMetadataAndFilter(t *testing.T) {
	dir := NewStationDirectory(
		[]Station{{ID: "1210702", Name: "Porto, S. Gens", Latitude: ptr(41.2), Longitude: ptr(-8.6)}},
		map[string]string{"1200545": "Maia"},
	)
	env := ParseEnv{
		Stations:      dir,
		StationFilter: map[string]struct{}{"1210702": {}},
	}

	records, _, err := ParsePayload(mustDecode(t, ipmaTwoStations), env)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1210702 - Porto, S. Gens", records[0].Place)
	assert.Equal(t, ptr(41.2), records[0].Latitude)
	assert.Equal(t, ptr(-8.6), records[0].Longitude)
}

func TestParsePayload_IPMA_SkipsNullStations(t *testing.T) {
	payload := `{
		"2024-05-01T09:00": {"1": {"temperatura": 10}, "2": null},
		"2024-05-01T10:00": {"1": {"temperatura": 11}, "3": {"temperatura": 12}}
	}`

	records, _, err := ParsePayload(mustDecode(t, payload), ParseEnv{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), records[0].ObservedAt)
	assert.Equal(t, "3", records[2].Place)
}

func TestParsePayload_Weatherbit(t *testing.T) {
	records, parser, err := ParsePayload(mustDecode(t, weatherbitPayload), ParseEnv{})
	require.NoError(t, err)
	assert.Equal(t, "weatherbit", parser)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, SourceWeatherbit, r.Source)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), r.ObservedAt)
	assert.Equal(t, "Maia", r.Place)
	assert.Equal(t, ptr(18.5), r.Temperature)
	assert.Equal(t, ptr(72), r.Humidity)
	assert.Nil(t, r.Precipitation, "precip is missing from the payload")
	assert.Equal(t, ptr(41.23), r.Latitude)
}

func TestParsePayload_Weatherbit_FallbacksAndCount(t *testing.T) {
	payload := `{"data": [
		{"ts": 1714557600, "temp": 18.5},
		{"ob_time": "2024-05-01 11:00", "city_name": "Porto", "temp": "nan"},
		{"ob_time": "2024-05-01 12:00", "temp": ""}
	]}`

	records, _, err := ParsePayload(mustDecode(t, payload), ParseEnv{DefaultCity: "Maia,PT"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), records[0].ObservedAt)
	assert.Equal(t, "Maia,PT", records[0].Place)
	assert.Equal(t, "Porto", records[1].Place)
	assert.Nil(t, records[1].Temperature)
	assert.Nil(t, records[2].Temperature)
}

func TestParsePayload_Weatherbit_UnknownCityPlaceholder(t *testing.T) {
	records, _, err := ParsePayload(mustDecode(t, `{"data": [{"ts": 1714557600}]}`), ParseEnv{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "UNKNOWN_CITY", records[0].Place)
}

func TestParsePayload_ICAO(t *testing.T) {
	payload := mustDecode(t, icaoPayload)

	records, parser, err := ParsePayload(payload, ParseEnv{})
	require.NoError(t, err)
	assert.Equal(t, "geonames_icao", parser)
	require.Len(t, records, 1, "error responses are skipped")

	r := records[0]
	assert.Equal(t, SourceGeoNamesICAO, r.Source)
	assert.Equal(t, "LPPR", r.Place)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), r.ObservedAt)
	assert.Equal(t, ptr(16), r.Temperature)
	assert.Equal(t, ptr(5), r.WindSpeed)
	assert.Equal(t, ptr(1016), r.Pressure)
	assert.Nil(t, r.Precipitation)
	assert.Equal(t, ptr(-8.68), r.Longitude)

	assert.Equal(t, []string{"METAR LPPR: LPPR 011000Z 31005KT CAVOK 16/12 Q1016"}, METARReports(payload))
}

func TestParsePayload_ICAO_PlaceAndPressureFallbacks(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	payload := `[
		{"_requested_icao": "lpfr", "weatherObservation": {"seaLevelPressure": 1009, "datetime": "2024-05-01 10:00:00"}},
		{"weatherObservation": {"pressure": "1001.5"}}
	]`

	records, _, err := ParsePayload(mustDecode(t, payload), ParseEnv{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "LPFR", records[0].Place)
	assert.Equal(t, ptr(1009), records[0].Pressure)
	assert.False(t, records[0].Degraded)

	assert.Equal(t, "UNKNOWN_ICAO", records[1].Place)
	assert.Equal(t, ptr(1001.5), records[1].Pressure)
	assert.True(t, records[1].Degraded, "missing datetime falls back to the clock")
	assert.Equal(t, fake.Now(), records[1].ObservedAt)
}

func TestParsePayload_SourceOverride(t *testing.T) {
	records, _, err := ParsePayload(mustDecode(t, ipmaTwoStations), ParseEnv{Source: "IPMA_NORTE"})
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, "IPMA_NORTE", r.Source)
	}
}

func TestParsePayload_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty object", `{}`},
		{"empty weatherbit list", `{"data": []}`},
		{"scalar", `42`},
		{"non timestamp keys", `{"foo": {"bar": {}}}`},
		{"mixed top level", `{"2024-05-01T10:00": {"1": {}}, "count": 3}`},
		{"list without observations", `[{"status": {"message": "invalid user"}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParsePayload(mustDecode(t, tt.payload), ParseEnv{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload))
		})
	}
}

func TestDecodePayload_InvalidJSON(t *testing.T) {
	_, err := DecodePayload([]byte("{not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestToFloat(t *testing.T) {
	assert.Nil(t, toFloat(nil))
	assert.Nil(t, toFloat(""))
	assert.Nil(t, toFloat("NaN"))
	assert.Nil(t, toFloat("n/a"))
	assert.Nil(t, toFloat(true))
	assert.Equal(t, ptr(0), toFloat(0.0), "zero is a value, not absence")
	assert.Equal(t, ptr(12.5), toFloat(" 12.5 "))
}
