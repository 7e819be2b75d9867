package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/observability"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
)

// Store is one connected backend.
type Store interface {
	ExistingPlaces(ctx context.Context, source string, key domain.DedupKey) (map[string]struct{}, error)
	InsertMany(ctx context.Context, records []domain.Observation) error
	Close() error
}

// Connector resolves a descriptor to a live Store. Failures wrap domain.ErrConnect.
type Connector interface {
	Connect(ctx context.Context, d registry.TargetDescriptor) (Store, error)
}

// OfflineSink persists records when no target is reachable and returns the
// artifact location.
type OfflineSink interface {
	Write(records []domain.Observation) (string, error)
}

// Orchestrator drives the existence check and filtered insert of every batch
// into every target.
type Orchestrator struct {
	connector   Connector
	offline     OfflineSink
	granularity domain.Granularity
	timeout     time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewOrchestrator creates an Orchestrator. A zero timeout disables per-call
// deadlines. The clock times each target.
func NewOrchestrator(c Connector, offline OfflineSink, g domain.Granularity, timeout time.Duration,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		connector:   c,
		offline:     offline,
		granularity: g,
		timeout:     timeout,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// targetRun is the result of one target's goroutine.
type targetRun struct {
	result     domain.TargetResult
	connectErr error
}

// Write processes batches against all targets concurrently, one goroutine per
// target. Targets that fail to connect are excluded and recorded. When none
// connect, records go to the offline sink instead. Batches are read-only.
func (o *Orchestrator) Write(ctx context.Context, records []domain.Observation, batches []domain.Batch, targets []registry.TargetDescriptor) (domain.RunOutcome, error) {
	outcome := domain.RunOutcome{
		Records: len(records),
		Batches: len(batches),
	}

	runs := make([]targetRun, len(targets))
	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i] = o.writeTarget(ctx, targets[i], batches)
		}(i)
	}
	wg.Wait()

	for i, run := range runs {
		if run.connectErr != nil {
			if outcome.ConnectErrors == nil {
				outcome.ConnectErrors = make(map[string]string)
			}
			outcome.ConnectErrors[uniqueKey(outcome.ConnectErrors, targets[i].Name, i)] = run.connectErr.Error()
			continue
		}
		outcome.Targets = append(outcome.Targets, run.result)
	}

	if len(outcome.Targets) > 0 {
		return outcome, nil
	}

	path, err := o.offline.Write(records)
	if err != nil {
		return outcome, fmt.Errorf("write offline fallback: %w", err)
	}
	o.metrics.OfflineArtifacts.Inc()
	o.logger.Warn("no target reachable, records saved offline", "path", path, "records", len(records))
	outcome.OfflineArtifact = path
	return outcome, nil
}

// writeTarget connects, writes every batch, and always closes the store it
// opened. Close errors are logged and swallowed.
func (o *Orchestrator) writeTarget(ctx context.Context, d registry.TargetDescriptor, batches []domain.Batch) targetRun {
	start := o.clock.Now()
	logger := o.logger.With("target", d.Name, "kind", string(d.Kind))
	defer func() {
		o.metrics.TargetDuration.WithLabelValues(d.Name).Observe(o.clock.Since(start).Seconds())
	}()

	connectCtx, cancel := o.callContext(ctx)
	store, err := o.connector.Connect(connectCtx, d)
	cancel()
	if err != nil {
		logger.Error("connect failed", "error", err)
		o.metrics.ConnectFailures.WithLabelValues(d.Name).Inc()
		return targetRun{connectErr: err}
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()
	logger.Info("connected")

	result := domain.TargetResult{Name: d.Name, Kind: string(d.Kind)}
	for _, b := range batches {
		o.writeBatch(ctx, store, b, &result, logger)
	}
	result.Duration = o.clock.Since(start)

	o.metrics.RecordsInserted.WithLabelValues(d.Name).Add(float64(result.Inserted))
	o.metrics.RecordsSkipped.WithLabelValues(d.Name).Add(float64(result.Skipped))
	logger.Info("write summary",
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"failed_batches", len(result.FailedBatches),
	)
	return targetRun{result: result}
}

// writeBatch inserts the records whose place is not yet stored for the batch
// key. A failure abandons this batch only.
func (o *Orchestrator) writeBatch(ctx context.Context, store Store, b domain.Batch, result *domain.TargetResult, logger *slog.Logger) {
	key := b.Key.String()
	toInsert := b.Records

	if o.granularity != domain.GranularityNone {
		callCtx, cancel := o.callContext(ctx)
		existing, err := store.ExistingPlaces(callCtx, b.Key.Source, b.Key.Dedup)
		cancel()
		if err != nil {
			o.recordFailure(result, b, "exists", err, logger)
			return
		}
		toInsert = missing(b.Records, existing)
	}

	skipped := len(b.Records) - len(toInsert)
	result.Skipped += skipped
	if len(toInsert) == 0 {
		logger.Debug("batch already stored", "batch_key", key, "skipped", skipped)
		return
	}

	callCtx, cancel := o.callContext(ctx)
	err := store.InsertMany(callCtx, toInsert)
	cancel()
	if err != nil {
		// Records counted as skipped above were already stored; only the
		// subset that failed is reported.
		o.recordFailure(result, domain.Batch{Key: b.Key, Records: toInsert}, "insert", err, logger)
		return
	}
	result.Inserted += len(toInsert)
	logger.Debug("batch inserted", "batch_key", key, "inserted", len(toInsert), "skipped", skipped)
}

func (o *Orchestrator) recordFailure(result *domain.TargetResult, b domain.Batch, stage string, err error, logger *slog.Logger) {
	logger.Error("batch failed", "batch_key", b.Key.String(), "stage", stage, "records", len(b.Records), "error", err)
	o.metrics.BatchFailures.WithLabelValues(result.Name, stage).Inc()
	result.FailedBatches = append(result.FailedBatches, domain.BatchFailure{
		Batch:   b.Key.String(),
		Stage:   stage,
		Records: len(b.Records),
		Error:   err.Error(),
	})
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// missing returns records whose place is absent from existing, in order.
func missing(records []domain.Observation, existing map[string]struct{}) []domain.Observation {
	if len(existing) == 0 {
		return records
	}
	out := make([]domain.Observation, 0, len(records))
	for _, r := range records {
		if _, ok := existing[r.Place]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// uniqueKey returns name, or name#N (1-based index) when name is already used.
func uniqueKey[V any](m map[string]V, name string, i int) string {
	if _, taken := m[name]; !taken {
		return name
	}
	return fmt.Sprintf("%s#%d", name, i+1)
}
