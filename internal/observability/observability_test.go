package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.RecordsInserted.WithLabelValues("pg").Add(2)

	assert.InDelta(t, 2, testutil.ToFloat64(a.RecordsInserted.WithLabelValues("pg")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.RecordsInserted.WithLabelValues("pg")), 0)
}

func TestPushMetrics(t *testing.T) {
	var method, path string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetricsForTesting()
	m.RunsTotal.WithLabelValues("ok").Inc()

	require.NoError(t, PushMetrics(context.Background(), srv.URL, "meteo-ingest", m))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/meteo-ingest", path)
	assert.NotEmpty(t, body)
}

func TestPushMetrics_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := PushMetrics(context.Background(), srv.URL, "meteo-ingest", NewMetricsForTesting())
	assert.Error(t, err)
}
