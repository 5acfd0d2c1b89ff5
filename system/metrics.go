package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/circleci/netmonitor/o11y"
)

type MetricProducer interface {
	// MetricName The name for this group of metrics
	MetricName() string
	// Gauges are instantaneous name value pairs
	Gauges(context.Context) map[string]float64
}

func traceMetrics(ctx context.Context, producers []MetricProducer) {
	metrics := o11y.FromContext(ctx).MetricsProvider()
	if metrics == nil {
		return
	}
	for _, producer := range producers {
		name := strings.ReplaceAll(producer.MetricName(), "-", "_")
		for f, v := range producer.Gauges(ctx) {
			_ = metrics.Gauge(fmt.Sprintf("gauge.%s.%s", name, f), v, []string{}, 1)
		}
	}
}

// reportMetrics publishes the producers' gauges every interval until ctx is done.
func reportMetrics(ctx context.Context, interval time.Duration, producers []MetricProducer) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		traceMetrics(ctx, producers)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
