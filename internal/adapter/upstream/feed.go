package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

// Source kinds selectable with PIPELINE_SOURCE.
const (
	SourceIPMA       = "ipma"
	SourceWeatherbit = "weatherbit"
	SourceICAO       = "icao"
)

const (
	DefaultIPMAURL         = "https://api.ipma.pt/open-data/observation/meteorology/stations/observations.json"
	DefaultIPMAStationsURL = "https://api.ipma.pt/open-data/observation/meteorology/stations/stations.json"
	DefaultWeatherbitURL   = "https://api.weatherbit.io/v2.0/current"
	DefaultICAOEndpoint    = "https://api.geonames.org/weatherIcaoJSON"
)

// FeedConfig selects and parameterizes one upstream feed.
type FeedConfig struct {
	Source string
	// URL overrides the source's default endpoint. For icao it replaces the
	// per-code requests with a single fetch.
	URL string

	IPMAStationsURL   string
	IPMAFetchStations bool
	IPMAStationIDs    []string
	IPMAStationNames  map[string]string

	WeatherbitKey  string
	WeatherbitCity string

	GeoNamesUsername string
	ICAOCodes        []string
	ICAOEndpoint     string
}

// Feed supplies one run's payload and parse environment.
type Feed struct {
	client *Client
	cfg    FeedConfig
	logger *slog.Logger
}

// NewFeed validates the source-specific settings.
func NewFeed(client *Client, cfg FeedConfig, logger *slog.Logger) (*Feed, error) {
	switch cfg.Source {
	case SourceIPMA, SourceWeatherbit:
	case SourceICAO:
		if cfg.URL == "" && (cfg.GeoNamesUsername == "" || len(cfg.ICAOCodes) == 0) {
			return nil, fmt.Errorf("icao source needs GEONAMES_USERNAME and ICAO_CODES")
		}
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
	return &Feed{client: client, cfg: cfg, logger: logger}, nil
}

// Name returns the configured source kind.
func (f *Feed) Name() string { return f.cfg.Source }

// FetchPayload retrieves the decoded payload for one run.
func (f *Feed) FetchPayload(ctx context.Context) (any, error) {
	switch f.cfg.Source {
	case SourceWeatherbit:
		return f.client.FetchJSON(ctx, f.weatherbitURL())
	case SourceICAO:
		if f.cfg.URL != "" {
			payload, err := f.client.FetchJSON(ctx, f.cfg.URL)
			if err != nil {
				return nil, err
			}
			return []any{payload}, nil
		}
		return f.fetchICAO(ctx)
	default:
		return f.client.FetchJSON(ctx, orDefault(f.cfg.URL, DefaultIPMAURL))
	}
}

func (f *Feed) weatherbitURL() string {
	if f.cfg.URL != "" {
		return f.cfg.URL
	}
	q := url.Values{}
	q.Set("city", f.cfg.WeatherbitCity)
	q.Set("key", f.cfg.WeatherbitKey)
	return DefaultWeatherbitURL + "?" + q.Encode()
}

// fetchICAO requests each code in turn and tags object responses with the
// requested code.
func (f *Feed) fetchICAO(ctx context.Context) ([]any, error) {
	endpoint := orDefault(f.cfg.ICAOEndpoint, DefaultICAOEndpoint)
	responses := make([]any, 0, len(f.cfg.ICAOCodes))
	for _, code := range f.cfg.ICAOCodes {
		q := url.Values{}
		q.Set("ICAO", code)
		q.Set("username", f.cfg.GeoNamesUsername)

		payload, err := f.client.FetchJSON(ctx, endpoint+"?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("fetch icao %s: %w", code, err)
		}
		m, ok := payload.(map[string]any)
		if !ok {
			f.logger.Warn("unexpected icao response shape", "icao", code)
			continue
		}
		m[domain.RequestedICAOKey] = code
		responses = append(responses, m)
	}
	return responses, nil
}

// ParseEnv builds the parse environment. For IPMA it loads station metadata
// when enabled; a failed metadata fetch degrades to env-provided names only.
func (f *Feed) ParseEnv(ctx context.Context) domain.ParseEnv {
	env := domain.ParseEnv{DefaultCity: f.cfg.WeatherbitCity}
	if f.cfg.Source != SourceIPMA {
		return env
	}

	if len(f.cfg.IPMAStationIDs) > 0 {
		env.StationFilter = make(map[string]struct{}, len(f.cfg.IPMAStationIDs))
		for _, id := range f.cfg.IPMAStationIDs {
			env.StationFilter[id] = struct{}{}
		}
	}

	var stations []domain.Station
	if f.cfg.IPMAFetchStations {
		var err error
		stations, err = f.client.FetchStations(ctx, orDefault(f.cfg.IPMAStationsURL, DefaultIPMAStationsURL))
		if err != nil {
			f.logger.Warn("station metadata unavailable", "error", err)
		}
	}
	env.Stations = domain.NewStationDirectory(stations, f.cfg.IPMAStationNames)
	return env
}

// redact hides credentials carried in query strings.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	for _, k := range []string{"key", "username", "access_token", "token"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
