// Package sqlstore implements the relational backend on database/sql for the
// postgres, mysql and sqlite families.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
)

// columns is the insert column order, excluding the server-stamped ingested_at.
var columns = []string{
	"source", "observed_at", "temperature", "humidity", "wind_speed",
	"pressure", "precipitation", "place", "latitude", "longitude",
}

// maxRowsPerStatement keeps bind-parameter counts under every driver's limit.
// Larger inserts are split across statements inside the same transaction.
const maxRowsPerStatement = 500

// Store writes observations to one relational table.
type Store struct {
	db      *sql.DB
	dialect dialect
	table   string

	closeOnce sync.Once
}

// Open connects to the target and verifies the connection with a ping.
// Failures wrap domain.ErrConnect.
func Open(ctx context.Context, d registry.TargetDescriptor) (*Store, error) {
	dl, ok := dialects[d.Kind]
	if !ok {
		return nil, fmt.Errorf("open %s: kind %q is not relational: %w", d.Name, d.Kind, domain.ErrConnect)
	}
	dsn, err := driverDSN(d.Kind, d.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", d.Name, domain.ErrConnect, err)
	}

	db, err := sql.Open(dl.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", d.Name, domain.ErrConnect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w: %w", d.Name, domain.ErrConnect, err)
	}
	return &Store{db: db, dialect: dl, table: d.Table}, nil
}

// New wraps an existing handle. table must already be a validated identifier.
func New(db *sql.DB, kind registry.Kind, table string) (*Store, error) {
	dl, ok := dialects[kind]
	if !ok {
		return nil, fmt.Errorf("kind %q is not relational", kind)
	}
	return &Store{db: db, dialect: dl, table: table}, nil
}

// ExistingPlaces returns the distinct places already stored for source at key.
// Date keys match the whole [day, day+1) range; none keys match nothing.
func (s *Store) ExistingPlaces(ctx context.Context, source string, key domain.DedupKey) (map[string]struct{}, error) {
	places := make(map[string]struct{})
	if key.Granularity == domain.GranularityNone {
		return places, nil
	}

	query, args := s.existenceQuery(source, key)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing places: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var place string
		if err := rows.Scan(&place); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		places[place] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return places, nil
}

func (s *Store) existenceQuery(source string, key domain.DedupKey) (string, []any) {
	from, to := key.Window()
	base := fmt.Sprintf("SELECT DISTINCT place FROM %s WHERE source = %s AND ", s.table, s.dialect.bind(1))
	if key.Granularity == domain.GranularityDate {
		return base + fmt.Sprintf("observed_at >= %s AND observed_at < %s", s.dialect.bind(2), s.dialect.bind(3)),
			[]any{source, from, to}
	}
	return base + "observed_at = " + s.dialect.bind(2), []any{source, from}
}

// InsertMany writes all records in one transaction. Either every record is
// committed or the transaction is rolled back and domain.ErrInsert returned.
func (s *Store) InsertMany(ctx context.Context, records []domain.Observation) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", domain.ErrInsert, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(records); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(records))
		query, args := s.insertStatement(records[start:end])
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert into %s: %w: %w", s.table, domain.ErrInsert, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w: %w", domain.ErrInsert, err)
	}
	return nil
}

func (s *Store) insertStatement(records []domain.Observation) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s, ingested_at) VALUES ", s.table, strings.Join(columns, ", "))

	args := make([]any, 0, len(records)*len(columns))
	n := 1
	for i, r := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for range columns {
			b.WriteString(s.dialect.bind(n))
			b.WriteString(", ")
			n++
		}
		b.WriteString("CURRENT_TIMESTAMP)")
		args = append(args,
			r.Source, r.ObservedAt.UTC(),
			nullable(r.Temperature), nullable(r.Humidity), nullable(r.WindSpeed),
			nullable(r.Pressure), nullable(r.Precipitation),
			r.Place, nullable(r.Latitude), nullable(r.Longitude),
		)
	}
	return b.String(), args
}

// Close releases the pool. Only the first call does any work.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
