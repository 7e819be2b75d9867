package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{
	"2024-05-01T10:00": {
		"1210702": {"temperatura": 17.2},
		"1200545": {"temperatura": 15.0}
	},
	"2024-05-01T11:00": {
		"1210702": {"temperatura": 18.0}
	}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Passes(t *testing.T) {
	targets := writeFile(t, "targets.json", `[{"name": "local", "type": "sqlite", "dsn": "meteo.db"}]`)
	data := writeFile(t, "payload.json", payload)

	var out bytes.Buffer
	code := run(&out, targets, data, "timestamp", "")

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "local (sqlite)")
	assert.Contains(t, out.String(), "parser=ipma records=3 degraded=0 batches=2")
	assert.Contains(t, out.String(), "IPMA@2024-05-01 10:00:00: 2 records")
}

func TestRun_DateModeMergesHours(t *testing.T) {
	data := writeFile(t, "payload.json", payload)

	var out bytes.Buffer
	code := run(&out, "", data, "date", "")

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "IPMA@2024-05-01: 3 records")
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name     string
		targets  string
		payload  string
		dedup    string
		contains string
	}{
		{"invalid target", `[{"name": "bad", "type": "oracle"}]`, "", "timestamp", "bad:"},
		{"malformed payload", "", `["just", "strings"]`, "timestamp", "malformed payload"},
		{"no records", "", `{"2024-05-01T10:00": {}}`, "timestamp", "payload produced no records"},
		{"unknown dedup mode", "", payload, "hourly", "FATAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var targets, data string
			if tt.targets != "" {
				targets = writeFile(t, "targets.json", tt.targets)
			}
			if tt.payload != "" {
				data = writeFile(t, "payload.json", tt.payload)
			}

			var out bytes.Buffer
			assert.Equal(t, 1, run(&out, targets, data, tt.dedup, ""))
			assert.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestRun_ICAOPayloadListsMETAR(t *testing.T) {
	data := writeFile(t, "icao.json", `[{"_requested_icao": "LPPR", "weatherObservation": {
		"ICAO": "LPPR", "datetime": "2024-05-01 10:00:00", "temperature": "16",
		"observation": "LPPR 011000Z 31005KT CAVOK 16/12 Q1016"
	}}]`)

	var out bytes.Buffer
	code := run(&out, "", data, "timestamp", "")

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "parser=geonames_icao records=1")
	assert.Contains(t, out.String(), "METAR LPPR: LPPR 011000Z 31005KT CAVOK 16/12 Q1016")
}
