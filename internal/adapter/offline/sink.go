// Package offline persists a run's records to a local CSV file when no
// storage target could be reached.
package offline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

var header = []string{
	"source", "observed_at", "temperature", "humidity", "wind_speed",
	"pressure", "precipitation", "place", "latitude", "longitude",
}

// maxSuffix bounds the collision search for a free filename.
const maxSuffix = 1000

// Sink writes one timestamped CSV file per call.
type Sink struct {
	dir   string
	clock clockwork.Clock
	open  func(path string) (*os.File, error)
}

// NewSink returns a sink writing into dir, created on first use.
func NewSink(dir string, clock clockwork.Clock) *Sink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sink{dir: dir, clock: clock, open: createExclusive}
}

func createExclusive(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// Write stores every record, without deduplication, in a new file named
// meteo_YYYYmmdd_HHMMSS.csv (with an _N suffix if that name is taken) and
// returns its path.
func (s *Sink) Write(records []domain.Observation) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create offline dir: %w", err)
	}

	f, path, err := s.create()
	if err != nil {
		return "", err
	}

	if err := writeCSV(f, records); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close offline file: %w", err)
	}
	return path, nil
}

// writeCSV writes the header and one row per record, then syncs f.
func writeCSV(f *os.File, records []domain.Observation) error {
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write offline header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			return fmt.Errorf("write offline row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush offline file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync offline file: %w", err)
	}
	return nil
}

// create opens a new file exclusively so concurrent or same-second runs never
// share an artifact.
func (s *Sink) create() (*os.File, string, error) {
	base := "meteo_" + s.clock.Now().UTC().Format("20060102_150405")
	for n := 0; n < maxSuffix; n++ {
		name := base + ".csv"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, n)
		}
		path := filepath.Join(s.dir, name)
		f, err := s.open(path)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create offline file: %w", err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("create offline file: no free name for %s", base)
}

func row(r domain.Observation) []string {
	return []string{
		r.Source,
		r.ObservedAt.UTC().Format(time.RFC3339),
		num(r.Temperature),
		num(r.Humidity),
		num(r.WindSpeed),
		num(r.Pressure),
		num(r.Precipitation),
		r.Place,
		num(r.Latitude),
		num(r.Longitude),
	}
}

// num renders absent values as empty cells.
func num(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
