package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

// Parsed is a payload turned into normalized records and their batches.
type Parsed struct {
	Parser   string
	Records  []domain.Observation
	Batches  []domain.Batch
	Degraded int
	// Notes carries report lines derived from the payload, such as raw METAR text.
	Notes []string
}

// Transformer parses payloads with a fixed parser order and batches the result.
type Transformer struct {
	parsers     []domain.Parser
	granularity domain.Granularity
	logger      *slog.Logger
}

// NewTransformer creates a Transformer. With no parsers the default dispatch
// order is used.
func NewTransformer(g domain.Granularity, logger *slog.Logger, parsers ...domain.Parser) *Transformer {
	if len(parsers) == 0 {
		parsers = domain.DefaultParsers()
	}
	return &Transformer{parsers: parsers, granularity: g, logger: logger}
}

// Transform parses, normalizes and batches one payload. An unrecognized
// payload returns domain.ErrMalformedPayload and an empty result returns
// domain.ErrNoRecords.
func (t *Transformer) Transform(payload any, env domain.ParseEnv) (Parsed, error) {
	records, parser, err := domain.ParsePayload(payload, env, t.parsers...)
	if err != nil {
		return Parsed{}, err
	}
	if len(records) == 0 {
		return Parsed{Parser: parser}, fmt.Errorf("%s payload: %w", parser, domain.ErrNoRecords)
	}

	domain.NormalizeRecords(records)

	p := Parsed{Parser: parser, Records: records}
	for _, r := range records {
		if r.Degraded {
			p.Degraded++
			t.logger.Warn("observation time unparseable, using wall clock",
				"source", r.Source, "place", r.Place, "observed_at", r.ObservedAt)
		}
	}
	p.Batches = domain.BuildBatches(records, t.granularity)
	if parser == (domain.ICAOParser{}).Name() {
		p.Notes = domain.METARReports(payload)
	}
	return p, nil
}
