// Command validate checks a targets file and a saved upstream payload without
// touching any backend. It reports invalid targets, the parser that matched
// the payload, and the batches a real run would write.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -targets db_targets.json \
//	  -payload testdata/ipma_observations.json \
//	  -dedup-mode date
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/pipeline"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	info   []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) infof(format string, args ...any) {
	p.info = append(p.info, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	targetsPath := flag.String("targets", "", "path to the JSON or TOML targets file")
	payloadPath := flag.String("payload", "", "path to a saved upstream JSON payload")
	dedupMode := flag.String("dedup-mode", "timestamp", "dedup granularity: timestamp, date or none")
	source := flag.String("source-tag", "", "override the source tag written on records")
	flag.Parse()

	if *targetsPath == "" && *payloadPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(os.Stdout, *targetsPath, *payloadPath, *dedupMode, *source))
}

func run(w io.Writer, targetsPath, payloadPath, dedupMode, source string) int {
	g, err := domain.ParseGranularity(dedupMode)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}

	var phases []*phase
	if targetsPath != "" {
		phases = append(phases, validateTargets(targetsPath))
	}
	if payloadPath != "" {
		phases = append(phases, validatePayload(payloadPath, g, source))
	}

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}

	for _, p := range phases {
		if len(p.info) == 0 && p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for _, line := range p.info {
			fmt.Fprintf(w, "  %s\n", line)
		}
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func validateTargets(path string) *phase {
	p := &phase{name: "Targets file"}

	targets, invalid, err := registry.Load(path, os.LookupEnv)
	if err != nil {
		p.errorf("load %s: %v", path, err)
		return p
	}
	for _, t := range targets {
		p.infof("%s (%s)", t.Name, t.Kind)
	}

	names := make([]string, 0, len(invalid))
	for name := range invalid {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.errorf("%s: %v", name, invalid[name])
	}
	if len(targets) == 0 && len(invalid) == 0 {
		p.errorf("no targets defined; every run would fall back to the offline sink")
	}
	return p
}

func validatePayload(path string, g domain.Granularity, source string) *phase {
	p := &phase{name: "Payload parse"}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read %s: %v", path, err)
		return p
	}
	payload, err := domain.DecodePayload(data)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	parsed, err := pipeline.NewTransformer(g, logger).Transform(payload, domain.ParseEnv{Source: source})
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	p.infof("parser=%s records=%d degraded=%d batches=%d", parsed.Parser, len(parsed.Records), parsed.Degraded, len(parsed.Batches))
	for _, b := range parsed.Batches {
		p.infof("%s: %d records", b.Key, len(b.Records))
	}
	for _, note := range parsed.Notes {
		p.infof("%s", note)
	}
	return p
}
