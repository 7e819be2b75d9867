package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	PipelineName string
	PipelineEnv  string
	Source       string
	APIURL       string
	TargetsFile  string
	DedupMode    domain.Granularity
	OfflineDir   string

	IPMAStationsURL   string
	IPMAFetchStations bool
	IPMAStationIDs    []string
	IPMAStationNames  map[string]string

	WeatherbitKey  string
	WeatherbitCity string

	GeoNamesUsername string
	ICAOCodes        []string
	ICAOEndpoint     string

	HTTPTimeout   time.Duration
	TargetTimeout time.Duration

	// Run reports are published to Kafka only when KafkaReportTopic is set.
	KafkaBrokers     []string
	KafkaReportTopic string
	PushgatewayURL   string

	// ScheduleInterval zero means run once and exit.
	ScheduleInterval time.Duration
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	dedup, err := domain.ParseGranularity(strings.ToLower(strings.TrimSpace(os.Getenv("PIPELINE_DEDUP_MODE"))))
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_DEDUP_MODE: %w", err)
	}

	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "30s", false)
	if err != nil {
		return nil, err
	}
	targetTimeout, err := parseDuration("TARGET_TIMEOUT", "30s", true)
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration("SCHEDULE_INTERVAL", "", true)
	if err != nil {
		return nil, err
	}

	fetchStations, err := parseBool("IPMA_FETCH_STATIONS_META", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PipelineName: sharedcfg.EnvOrDefault("PIPELINE_NAME", "GM-METEO"),
		PipelineEnv:  sharedcfg.EnvOrDefault("PIPELINE_ENV", "dev"),
		Source:       strings.ToLower(sharedcfg.EnvOrDefault("PIPELINE_SOURCE", "ipma")),
		APIURL:       os.Getenv("PIPELINE_API_URL"),
		TargetsFile:  sharedcfg.EnvOrDefault("PIPELINE_DB_TARGETS_FILE", "db_targets.json"),
		DedupMode:    dedup,
		OfflineDir:   sharedcfg.EnvOrDefault("PIPELINE_OFFLINE_DIR", "offline_output"),

		IPMAStationsURL:   os.Getenv("IPMA_STATIONS_URL"),
		IPMAFetchStations: fetchStations,
		IPMAStationIDs:    splitList(os.Getenv("IPMA_STATION_IDS")),
		IPMAStationNames:  domain.ParseStationNames(os.Getenv("IPMA_STATION_NAMES")),

		WeatherbitKey:  os.Getenv("WEATHERBIT_API_KEY"),
		WeatherbitCity: sharedcfg.EnvOrDefault("WEATHERBIT_CITY", "Maia"),

		GeoNamesUsername: os.Getenv("GEONAMES_USERNAME"),
		ICAOCodes:        upper(splitList(os.Getenv("ICAO_CODES"))),
		ICAOEndpoint:     os.Getenv("GEONAMES_ICAO_ENDPOINT"),

		HTTPTimeout:   httpTimeout,
		TargetTimeout: targetTimeout,

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportTopic: os.Getenv("KAFKA_REPORT_TOPIC"),
		PushgatewayURL:   os.Getenv("PUSHGATEWAY_URL"),

		ScheduleInterval: interval,
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
	}

	switch cfg.Source {
	case "ipma", "weatherbit":
	case "icao":
		if cfg.APIURL == "" && (cfg.GeoNamesUsername == "" || len(cfg.ICAOCodes) == 0) {
			return nil, errors.New("PIPELINE_SOURCE=icao requires GEONAMES_USERNAME and ICAO_CODES")
		}
	default:
		return nil, fmt.Errorf("invalid PIPELINE_SOURCE %q", cfg.Source)
	}
	if cfg.KafkaReportTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_REPORT_TOPIC is set")
	}

	return cfg, nil
}

// Scheduled reports whether the service runs on an interval instead of once.
func (c *Config) Scheduled() bool {
	return c.ScheduleInterval > 0
}

// parseDuration reads key as a Go duration. Zero is accepted only when
// allowZero is set; an empty default with allowZero yields zero.
func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	if s == "" && allowZero {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, s)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func upper(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToUpper(s)
	}
	return in
}
