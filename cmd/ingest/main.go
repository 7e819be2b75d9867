package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/backend"
	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/meteo-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/offline"
	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/upstream"
	"github.com/couchcryptid/meteo-ingest-service/internal/config"
	"github.com/couchcryptid/meteo-ingest-service/internal/observability"
	"github.com/couchcryptid/meteo-ingest-service/internal/pipeline"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
	"github.com/couchcryptid/meteo-ingest-service/internal/report"
	"github.com/couchcryptid/meteo-ingest-service/internal/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	client := upstream.NewClient(cfg.HTTPTimeout, logger, metrics)
	feed, err := upstream.NewFeed(client, feedConfig(cfg), logger)
	if err != nil {
		logger.Error("invalid source configuration", "error", err)
		return 1
	}

	reporters := report.Multi{report.LogReporter{Logger: logger}}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaReportTopic != "" {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaReportTopic, logger)
		reporters = append(reporters, publisher)
		logger.Info("run reports published to kafka", "topic", cfg.KafkaReportTopic)
	}

	orchestrator := pipeline.NewOrchestrator(
		backend.NewConnector(clock),
		offline.NewSink(cfg.OfflineDir, clock),
		cfg.DedupMode,
		cfg.TargetTimeout,
		clock,
		logger,
		metrics,
	)
	p := pipeline.New(
		feed,
		pipeline.NewTransformer(cfg.DedupMode, logger),
		func() ([]registry.TargetDescriptor, map[string]error, error) {
			return registry.Load(cfg.TargetsFile, os.LookupEnv)
		},
		orchestrator,
		reporters,
		pipeline.Info{Name: cfg.PipelineName, Env: cfg.PipelineEnv, DedupMode: cfg.DedupMode},
		clock,
		logger,
		metrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	if cfg.Scheduled() {
		runScheduled(ctx, cfg, p, logger, metrics)
	} else {
		code = runOnce(ctx, cfg, p, logger, metrics)
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return code
}

// runOnce performs a single run and pushes its metrics when a Pushgateway is
// configured. The exit code is 1 only for run-fatal errors.
func runOnce(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger, metrics *observability.Metrics) int {
	rep, runErr := p.RunOnce(ctx)
	_, _ = os.Stdout.WriteString(report.Render(rep))

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := observability.PushMetrics(pushCtx, cfg.PushgatewayURL, cfg.PipelineName, metrics); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("run failed", "run_id", rep.RunID, "error", runErr)
		return 1
	}
	return 0
}

// runScheduled serves health and metrics while the scheduler repeats runs,
// until ctx is cancelled.
func runScheduled(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger, metrics *observability.Metrics) {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(p, cfg.ScheduleInterval, logger, metrics)
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func feedConfig(cfg *config.Config) upstream.FeedConfig {
	return upstream.FeedConfig{
		Source:            cfg.Source,
		URL:               cfg.APIURL,
		IPMAStationsURL:   cfg.IPMAStationsURL,
		IPMAFetchStations: cfg.IPMAFetchStations,
		IPMAStationIDs:    cfg.IPMAStationIDs,
		IPMAStationNames:  cfg.IPMAStationNames,
		WeatherbitKey:     cfg.WeatherbitKey,
		WeatherbitCity:    cfg.WeatherbitCity,
		GeoNamesUsername:  cfg.GeoNamesUsername,
		ICAOCodes:         cfg.ICAOCodes,
		ICAOEndpoint:      cfg.ICAOEndpoint,
	}
}
