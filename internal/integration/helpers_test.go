//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/backend"
	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/offline"
	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/observability"
	"github.com/couchcryptid/meteo-ingest-service/internal/pipeline"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
	"github.com/couchcryptid/meteo-ingest-service/internal/report"
)

const ipmaPayload = `{
	"2024-05-01T10:00": {
		"1210702": {"temperatura": 17.2, "humidade": 60, "intensidadeVento": 3.1, "pressao": 1015.2},
		"1200545": {"temperatura": 15.0, "humidade": 71, "intensidadeVento": 2.0, "pressao": -99.0}
	}
}`

const postgresSchema = `CREATE TABLE meteo (
	id            BIGSERIAL PRIMARY KEY,
	source        TEXT NOT NULL,
	observed_at   TIMESTAMPTZ NOT NULL,
	temperature   DOUBLE PRECISION,
	humidity      DOUBLE PRECISION,
	wind_speed    DOUBLE PRECISION,
	pressure      DOUBLE PRECISION,
	precipitation DOUBLE PRECISION,
	place         TEXT NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	ingested_at   TIMESTAMPTZ NOT NULL
)`

type staticSource struct{}

func (staticSource) Name() string { return "ipma" }

func (staticSource) FetchPayload(_ context.Context) (any, error) {
	return domain.DecodePayload([]byte(ipmaPayload))
}

func (staticSource) ParseEnv(_ context.Context) domain.ParseEnv { return domain.ParseEnv{} }

// newPipeline wires the production connector and offline sink around a fixed
// payload and target list.
func newPipeline(t *testing.T, targets []registry.TargetDescriptor, reporter report.Reporter) *pipeline.Pipeline {
	t.Helper()
	clock := clockwork.NewRealClock()
	metrics := observability.NewMetricsForTesting()
	logger := slog.Default()

	orch := pipeline.NewOrchestrator(
		backend.NewConnector(clock),
		offline.NewSink(filepath.Join(t.TempDir(), "offline"), clock),
		domain.GranularityTimestamp,
		30*time.Second,
		clock,
		logger,
		metrics,
	)
	return pipeline.New(
		staticSource{},
		pipeline.NewTransformer(domain.GranularityTimestamp, logger),
		func() ([]registry.TargetDescriptor, map[string]error, error) { return targets, nil, nil },
		orch,
		reporter,
		pipeline.Info{Name: "GM-METEO", Env: "integration", DedupMode: domain.GranularityTimestamp},
		clock,
		logger,
		metrics,
	)
}

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("meteo"),
		tcpostgres.WithUsername("meteo"),
		tcpostgres.WithPassword("meteo"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, postgresSchema)
	require.NoError(t, err, "create schema")
	return dsn
}

func startMongo(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tcmongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start mongodb container")

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return uri
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("meteo-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

const sqliteSchema = `CREATE TABLE meteo (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source        TEXT NOT NULL,
	observed_at   DATETIME NOT NULL,
	temperature   REAL,
	humidity      REAL,
	wind_speed    REAL,
	pressure      REAL,
	precipitation REAL,
	place         TEXT NOT NULL,
	latitude      REAL,
	longitude     REAL,
	ingested_at   DATETIME NOT NULL
)`

func createSQLiteSchema(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)
}
