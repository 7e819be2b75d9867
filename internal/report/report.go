// Package report renders and delivers the summary of an ingestion run.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

// Report is everything the reporting collaborator receives after a run.
type Report struct {
	RunID      string            `json:"run_id"`
	Pipeline   string            `json:"pipeline"`
	Env        string            `json:"env"`
	Source     string            `json:"source"`
	Parser     string            `json:"parser,omitempty"`
	DedupMode  string            `json:"dedup_mode"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Outcome    domain.RunOutcome `json:"outcome"`
	Steps      []Step            `json:"steps"`
	Notes      []string          `json:"notes,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Status summarizes the run for metrics labels and message headers.
func (r Report) Status() string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Outcome.OfflineArtifact != "":
		return "offline"
	case len(r.Outcome.ConnectErrors) > 0 || len(r.Outcome.InvalidTargets) > 0 || failedBatches(r.Outcome) > 0:
		return "partial"
	default:
		return "ok"
	}
}

func failedBatches(o domain.RunOutcome) int {
	n := 0
	for _, t := range o.Targets {
		n += len(t.FailedBatches)
	}
	return n
}

// Reporter delivers a finished run's report.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// Multi fans a report out to several reporters and returns the first error.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, r Report) error {
	var first error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogReporter writes the report to the structured logger, followed by the
// rendered step table at debug level.
type LogReporter struct {
	Logger *slog.Logger
}

func (l LogReporter) Report(_ context.Context, r Report) error {
	attrs := []any{
		"run_id", r.RunID,
		"status", r.Status(),
		"source", r.Source,
		"records", r.Outcome.Records,
		"degraded", r.Outcome.Degraded,
		"batches", r.Outcome.Batches,
		"inserted", r.Outcome.Inserted(),
		"skipped", r.Outcome.Skipped(),
		"duration", r.FinishedAt.Sub(r.StartedAt),
	}
	if r.Outcome.OfflineArtifact != "" {
		attrs = append(attrs, "offline_artifact", r.Outcome.OfflineArtifact)
	}
	if r.Error != "" {
		l.Logger.Error("run failed", append(attrs, "error", r.Error)...)
	} else {
		l.Logger.Info("run finished", attrs...)
	}
	l.Logger.Debug("run report", "summary", Render(r))
	return nil
}

// Render formats the report as plain text: a header, notes and the step
// table with cumulative watch times and an Overall row.
func Render(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline %s (%s) run %s: %s\n", r.Pipeline, r.Env, r.RunID, r.Status())
	fmt.Fprintf(&b, "Source: %s | Dedup mode: %s | Records: %d | Batches: %d\n",
		r.Source, r.DedupMode, r.Outcome.Records, r.Outcome.Batches)

	for _, line := range summaryLines(r) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Task(s) of %s (%s).\twatch time (secs)\n", r.Pipeline, r.Env)
	var total time.Duration
	for _, s := range r.Steps {
		total += s.Watch
		label := s.Name
		if s.Status != "" {
			label += " (" + s.Status + ")"
		}
		fmt.Fprintf(tw, "%s\t%.2f\n", label, total.Seconds())
	}
	fmt.Fprintf(tw, "Overall:\t%.2f\n", total.Seconds())
	_ = tw.Flush()

	return b.String()
}

func summaryLines(r Report) []string {
	var lines []string

	names := make([]string, 0, len(r.Outcome.Targets))
	for _, t := range r.Outcome.Targets {
		names = append(names, t.Name)
	}
	if len(names) == 0 {
		lines = append(lines, "Connected targets: (none)")
	} else {
		lines = append(lines, "Connected targets: "+strings.Join(names, ", "))
	}
	for _, t := range r.Outcome.Targets {
		lines = append(lines, fmt.Sprintf("Write summary @ %s: ins=%d, skip=%d, failed_batches=%d",
			t.Name, t.Inserted, t.Skipped, len(t.FailedBatches)))
	}

	if s := joinErrors(r.Outcome.ConnectErrors); s != "" {
		lines = append(lines, "Targets with errors: "+s)
	}
	if s := joinErrors(r.Outcome.InvalidTargets); s != "" {
		lines = append(lines, "Invalid targets: "+s)
	}
	if r.Outcome.OfflineArtifact != "" {
		lines = append(lines, "Data saved to file "+r.Outcome.OfflineArtifact)
	}
	lines = append(lines, r.Notes...)
	if r.Error != "" {
		lines = append(lines, "Error: "+r.Error)
	}
	return lines
}

func joinErrors(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, "; ")
}
