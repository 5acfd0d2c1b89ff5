// Package o11y wires the honeycomb tracing provider and the statsd metrics client together
// from flat configuration, as parsed by the command line.
package o11y

import (
	"context"
	"os"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/circleci/netmonitor/config/secret"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/o11y/honeycomb"
)

type Config struct {
	Statsd           string
	HoneycombEnabled bool
	HoneycombDataset string
	HoneycombKey     secret.String
	Format           string
	Version          string
	Service          string
	StatsNamespace   string

	// Optional
	Mode                    string
	Debug                   bool
	StatsdTelemetryDisabled bool
}

// Setup is the primary entrypoint to initialise the o11y system both in development and production.
//
// Tests that set up o11y more than once should call DevInit first.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	if coordinator == nil {
		return setup(ctx, o)
	}
	return coordinator.setup(ctx, o)
}

func setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	honeyConfig := honeycomb.Config{
		Dataset:     o.HoneycombDataset,
		Key:         o.HoneycombKey.Raw(),
		Format:      o.Format,
		SendTraces:  o.HoneycombEnabled,
		ServiceName: o.Service,
		Debug:       o.Debug,
	}
	if err := honeyConfig.Validate(); err != nil {
		return nil, nil, err
	}

	metrics, err := statsdClient(o)
	if err != nil {
		return nil, nil, err
	}
	honeyConfig.Metrics = metrics

	p := honeycomb.New(honeyConfig)
	p.AddGlobalField("service", o.Service)
	p.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		p.AddGlobalField("mode", o.Mode)
	}

	return o11y.WithProvider(ctx, p), p.Close, nil
}

func statsdClient(o Config) (o11y.ClosableMetricsProvider, error) {
	if o.Statsd == "" {
		return &statsd.NoOpClient{}, nil
	}

	hostname, _ := os.Hostname()
	tags := []string{
		"service:" + o.Service,
		"version:" + o.Version,
		"hostname:" + hostname,
	}
	if o.Mode != "" {
		tags = append(tags, "mode:"+o.Mode)
	}

	opts := []statsd.Option{
		statsd.WithNamespace(o.StatsNamespace),
		statsd.WithTags(tags),
	}
	if o.StatsdTelemetryDisabled {
		opts = append(opts, statsd.WithoutTelemetry())
	}
	return statsd.New(o.Statsd, opts...)
}
