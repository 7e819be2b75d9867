package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushMetrics sends the run's metrics to a Prometheus Pushgateway. One-shot
// runs exit before a scrape could reach them.
func PushMetrics(ctx context.Context, url, job string, m *Metrics) error {
	p := push.New(url, job)
	for _, c := range m.collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
