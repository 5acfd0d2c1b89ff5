package system

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/termination"
)

type System struct {
	services        []func(context.Context) error
	metricProducers []MetricProducer
	cleanups        []func(ctx context.Context) error
	metricsInterval time.Duration
}

func New() *System {
	return &System{
		metricsInterval: 10 * time.Second,
	}
}

var terminationTestHook = termination.Handle

// Run runs every service until one of them fails or the process is terminated.
func (r *System) Run(ctx context.Context, delay time.Duration) (err error) {
	ctx, span := o11y.StartSpan(ctx, "system: run")
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("system.run", "result"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return terminationTestHook(ctx, delay)
	})

	for _, f := range r.services {
		f := f
		g.Go(func() error {
			return f(ctx)
		})
	}

	if len(r.metricProducers) > 0 {
		g.Go(func() error {
			reportMetrics(ctx, r.metricsInterval, r.metricProducers)
			return nil
		})
	}

	return g.Wait()
}

func (r *System) AddService(s func(ctx context.Context) error) {
	r.services = append(r.services, s)
}

func (r *System) AddMetrics(m MetricProducer) {
	r.metricProducers = append(r.metricProducers, m)
}

func (r *System) AddCleanup(c func(ctx context.Context) error) {
	r.cleanups = append(r.cleanups, c)
}

// Cleanup calls the cleanups in reverse order of registration.
func (r *System) Cleanup(ctx context.Context) {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](ctx); err != nil {
			o11y.LogError(ctx, "system: cleanup", err)
		}
	}
}
