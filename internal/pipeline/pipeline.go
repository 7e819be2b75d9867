package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/observability"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
	"github.com/couchcryptid/meteo-ingest-service/internal/report"
)

// PayloadSource supplies the upstream payload and parse environment of a run.
type PayloadSource interface {
	Name() string
	FetchPayload(ctx context.Context) (any, error)
	ParseEnv(ctx context.Context) domain.ParseEnv
}

// TargetLoader returns the run's validated targets and the rejected ones.
type TargetLoader func() ([]registry.TargetDescriptor, map[string]error, error)

// Info labels the reports a pipeline produces.
type Info struct {
	Name      string
	Env       string
	DedupMode domain.Granularity
}

// Pipeline runs fetch, parse, write and report as one unit of work.
type Pipeline struct {
	source       PayloadSource
	transformer  *Transformer
	targets      TargetLoader
	orchestrator *Orchestrator
	reporter     report.Reporter
	info         Info
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
	latest       atomic.Pointer[report.Report]
}

// New creates a Pipeline with the given stages and observability.
func New(source PayloadSource, t *Transformer, targets TargetLoader, o *Orchestrator, reporter report.Reporter,
	info Info, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		source:       source,
		transformer:  t,
		targets:      targets,
		orchestrator: o,
		reporter:     reporter,
		info:         info,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once a run has completed without a fatal error.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// LatestReport returns the report of the most recent finished run.
func (p *Pipeline) LatestReport() (report.Report, bool) {
	rep := p.latest.Load()
	if rep == nil {
		return report.Report{}, false
	}
	return *rep, true
}

// RunOnce executes one ingestion run. The report is always delivered; the
// returned error is non-nil only for run-fatal failures (fetch, malformed
// payload, no records, or a failed offline fallback).
func (p *Pipeline) RunOnce(ctx context.Context) (report.Report, error) {
	trace := report.NewTrace(p.clock)
	rep := report.Report{
		RunID:     uuid.NewString(),
		Pipeline:  p.info.Name,
		Env:       p.info.Env,
		Source:    p.source.Name(),
		DedupMode: string(p.info.DedupMode),
		StartedAt: p.clock.Now().UTC(),
	}
	logger := p.logger.With("run_id", rep.RunID)
	logger.Info("run started", "source", rep.Source, "dedup_mode", rep.DedupMode)

	err := p.run(ctx, trace, &rep, logger)
	if err != nil {
		trace.MarkStatus("Error: "+err.Error(), "FAIL")
		rep.Error = err.Error()
	} else {
		p.ready.Store(true)
	}

	rep.Steps = trace.Steps()
	rep.FinishedAt = p.clock.Now().UTC()
	p.observe(rep)
	p.latest.Store(&rep)

	if rerr := p.reporter.Report(ctx, rep); rerr != nil {
		logger.Warn("report delivery failed", "error", rerr)
	}
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, trace *report.Trace, rep *report.Report, logger *slog.Logger) error {
	payload, err := p.source.FetchPayload(ctx)
	if err != nil {
		return fmt.Errorf("fetch payload: %w", err)
	}
	trace.Mark("Data request successful!")

	parsed, err := p.transformer.Transform(payload, p.source.ParseEnv(ctx))
	rep.Parser = parsed.Parser
	if err != nil {
		return err
	}
	rep.Outcome.Records = len(parsed.Records)
	rep.Outcome.Degraded = parsed.Degraded
	rep.Outcome.Batches = len(parsed.Batches)
	rep.Notes = append(rep.Notes, parsed.Notes...)
	p.metrics.RecordsParsed.WithLabelValues(parsed.Parser).Add(float64(len(parsed.Records)))
	p.metrics.RecordsDegraded.Add(float64(parsed.Degraded))
	p.metrics.BatchesBuilt.Add(float64(len(parsed.Batches)))
	trace.Mark(fmt.Sprintf("Parsing (%d records, %d batches)", len(parsed.Records), len(parsed.Batches)))

	targets, invalid, err := p.targets()
	if err != nil {
		// Without a target list the records still reach the offline sink.
		logger.Error("load targets failed", "error", err)
		rep.Notes = append(rep.Notes, "Target list unavailable: "+err.Error())
		trace.MarkStatus("Load DB targets", "FAIL")
	} else {
		trace.Mark(fmt.Sprintf("Load DB targets (%d)", len(targets)))
	}
	p.metrics.InvalidTargets.Set(float64(len(invalid)))
	for name, ierr := range invalid {
		logger.Warn("target rejected", "target", name, "error", ierr)
	}

	outcome, err := p.orchestrator.Write(ctx, parsed.Records, parsed.Batches, targets)
	outcome.Degraded = parsed.Degraded
	outcome.InvalidTargets = errorStrings(invalid)
	rep.Outcome = outcome
	for _, t := range outcome.Targets {
		status := ""
		if len(t.FailedBatches) > 0 {
			status = "FAIL"
		}
		trace.MarkDuration(fmt.Sprintf("Write summary @ %s: ins=%d, skip=%d", t.Name, t.Inserted, t.Skipped), status, t.Duration)
	}
	for name, cerr := range outcome.ConnectErrors {
		trace.MarkDuration(fmt.Sprintf("Failed to connect to `%s`: %s", name, cerr), "FAIL", 0)
	}
	if err != nil {
		return err
	}
	if outcome.OfflineArtifact != "" {
		trace.Mark(fmt.Sprintf("Data saved to file `%s`", outcome.OfflineArtifact))
	}
	return nil
}

func (p *Pipeline) observe(rep report.Report) {
	p.metrics.RunsTotal.WithLabelValues(rep.Status()).Inc()
	p.metrics.RunDuration.Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	if rep.Error == "" && len(rep.Outcome.Targets) > 0 {
		p.metrics.LastSuccess.Set(float64(rep.FinishedAt.Unix()))
	}
}

func errorStrings(m map[string]error) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.Error()
	}
	return out
}
