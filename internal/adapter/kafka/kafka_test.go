package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/report"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func sampleReport() report.Report {
	finished := time.Date(2024, 5, 1, 10, 0, 3, 0, time.UTC)
	return report.Report{
		RunID:      "0b3f6f1e-run",
		Pipeline:   "GM-METEO",
		Source:     "ipma",
		FinishedAt: finished,
		Outcome: domain.RunOutcome{
			Records: 2,
			Targets: []domain.TargetResult{{Name: "pg", Inserted: 2}},
		},
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(sampleReport())
	require.NoError(t, err)

	assert.Equal(t, []byte("0b3f6f1e-run"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "status", msg.Headers[0].Key)
	assert.Equal(t, []byte("ok"), msg.Headers[0].Value)
	assert.Equal(t, []byte("2024-05-01T10:00:03Z"), msg.Headers[2].Value)

	var decoded report.Report
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 2, decoded.Outcome.Inserted())
}

func TestPublisher_Report(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, p.Report(context.Background(), sampleReport()))
	require.Len(t, w.msgs, 1)
	assert.Contains(t, string(w.msgs[0].Value), `"run_id":"0b3f6f1e-run"`)

	w.err = errors.New("leader not available")
	err := p.Report(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish run report")
}
