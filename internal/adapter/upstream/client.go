// Package upstream fetches raw observation payloads and station metadata from
// the weather APIs.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/observability"
)

// maxBodyBytes caps a single upstream response.
const maxBodyBytes = 32 << 20

var (
	errRateLimited = errors.New("rate limited")
	errServer      = errors.New("server error")
	errStatus      = errors.New("unexpected status code")
)

// Backoff controls retries of a failed request.
type Backoff struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration // cap on the delay; must not be below Initial
}

// DefaultBackoff retries three times starting at 500ms.
var DefaultBackoff = Backoff{MaxRetries: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}

// Client performs GET requests with retries behind a circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	backoff    Backoff
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an upstream client with the given per-request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return newClient(&http.Client{Timeout: timeout}, DefaultBackoff, logger, metrics)
}

func newClient(hc *http.Client, backoff Backoff, logger *slog.Logger, metrics *observability.Metrics) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{httpClient: hc, breaker: cb, backoff: backoff, metrics: metrics, logger: logger}
}

// FetchJSON GETs rawURL and decodes the body, keeping numbers as json.Number.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (any, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return domain.DecodePayload(body)
}

// get returns the body of a 2xx response, retrying transport errors, 429 and
// 5xx with exponential backoff. An open breaker fails immediately.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	delay := c.backoff.Initial
	for attempt := 0; ; attempt++ {
		start := time.Now()
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, rawURL)
		})
		c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			c.metrics.UpstreamRequests.WithLabelValues("success").Inc()
			return result.([]byte), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.UpstreamRequests.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("fetch %s: %w", redact(rawURL), err)
		}
		c.metrics.UpstreamRequests.WithLabelValues("error").Inc()

		if !retryable(err) || attempt >= c.backoff.MaxRetries || ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", redact(rawURL), err)
		}

		c.logger.Warn("upstream request failed, retrying",
			"url", redact(rawURL), "attempt", attempt+1, "delay", delay, "error", err)
		if !sharedretry.SleepWithContext(ctx, delay) {
			return nil, fmt.Errorf("fetch %s: %w", redact(rawURL), ctx.Err())
		}
		delay = sharedretry.NextBackoff(delay, c.backoff.Max)
	}
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", errServer, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", errStatus, resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// retryable reports whether another attempt could succeed. Client errors
// other than 429 are final.
func retryable(err error) bool {
	return !errors.Is(err, errStatus)
}
