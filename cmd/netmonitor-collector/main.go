// Command netmonitor-collector serves one shared monitoring scope, so several test processes can
// aggregate their outbound calls together.
package main

import (
	"context"
	"errors"
	"fmt"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal
	"time"

	"github.com/alecthomas/kong"

	"github.com/circleci/netmonitor/collector"
	o11yconfig "github.com/circleci/netmonitor/config/o11y"
	"github.com/circleci/netmonitor/config/secret"
	"github.com/circleci/netmonitor/db"
	"github.com/circleci/netmonitor/httpserver"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/store"
	"github.com/circleci/netmonitor/store/memory"
	"github.com/circleci/netmonitor/store/sqlite"
	"github.com/circleci/netmonitor/system"
	"github.com/circleci/netmonitor/termination"
)

// Set at build time.
var (
	Version = "dev"
	Date    = "unknown"
)

type cli struct {
	Addr          string        `env:"COLLECTOR_ADDR" default:":9001" help:"The address for the collector to listen on"`
	Store         string        `env:"COLLECTOR_STORE" enum:"memory,sqlite" default:"memory" help:"Where the scope is held (memory, sqlite)"`
	DBPath        string        `name:"db-path" env:"COLLECTOR_DB_PATH" default:":memory:" help:"SQLite database file, used with --store=sqlite"`
	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"0s" help:"Delay shutdown by this amount" hidden:""`

	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb" env:"O11Y_HONEYCOMB" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"netmonitor"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,color,colour,text,none" default:"text" help:"Format used for stderr logging"`
}

func main() {
	err := run(Version, Date)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
	log.Println("exited 0")
}

func run(version, date string) (err error) {
	cli := cli{}
	kong.Parse(&cli, kong.Name("netmonitor-collector"))

	ctx, o11yCleanup, err := loadO11y(version, cli)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(runSpan, &err)

	o11y.Log(ctx, "starting collector",
		o11y.Field("version", version),
		o11y.Field("date", date),
		o11y.Field("store", cli.Store),
	)

	sys := system.New()
	defer sys.Cleanup(ctx)

	err = loadCollector(ctx, cli, sys)
	if err != nil {
		return err
	}

	return sys.Run(ctx, cli.ShutdownDelay)
}

func loadO11y(version string, cli cli) (context.Context, func(context.Context), error) {
	return o11yconfig.Setup(context.Background(), o11yconfig.Config{
		Statsd:           cli.O11yStatsd,
		HoneycombEnabled: cli.O11yHoneycombEnabled,
		HoneycombDataset: cli.O11yHoneycombDataset,
		HoneycombKey:     cli.O11yHoneycombKey,
		Format:           cli.O11yFormat,
		Version:          version,
		Service:          "netmonitor-collector",
		StatsNamespace:   "netmonitor.",
		Mode:             cli.Store,
	})
}

// metricStore is a store that also reports the size of its scope.
type metricStore interface {
	store.Store
	system.MetricProducer
}

func loadStore(ctx context.Context, cli cli, sys *system.System) (metricStore, error) {
	switch cli.Store {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		txm, err := db.Load(ctx, "collector", db.Config{Path: cli.DBPath}, sys)
		if err != nil {
			return nil, err
		}
		s, err := sqlite.New(ctx, txm)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store %q", cli.Store)
}

func loadCollector(ctx context.Context, cli cli, sys *system.System) error {
	s, err := loadStore(ctx, cli, sys)
	if err != nil {
		return err
	}
	sys.AddMetrics(s)

	api := collector.New(ctx, collector.Options{Store: s})
	_, err = httpserver.Load(ctx, httpserver.Config{
		Name:    "collector",
		Addr:    cli.Addr,
		Handler: api.Handler(),
	}, sys)
	return err
}
