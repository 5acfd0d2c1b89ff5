// Package honeycomb is the o11y Provider built on the honeycomb beeline.
//
// Every event is written locally as json, text or colour text, and is also sent to honeycomb
// when SendTraces is set. Metrics recorded on spans are forwarded to a statsd style provider.
package honeycomb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/client"
	"github.com/honeycombio/beeline-go/propagation"
	"github.com/honeycombio/beeline-go/trace"
	"github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/circleci/netmonitor/o11y"
)

type Config struct {
	Host    string
	Dataset string
	Key     string
	// Format of the local copy of each event: json (default), text, colour/color or none.
	Format string
	// SendTraces sends events to honeycomb as well as writing them locally.
	SendTraces bool
	// Sender replaces the honeycomb transmission, for tests.
	Sender transmission.Sender
	// Writer receives the local copy of events. Defaults to stderr.
	Writer      io.Writer
	Metrics     o11y.ClosableMetricsProvider
	ServiceName string
	Debug       bool
}

func (c *Config) Validate() error {
	if c.SendTraces && c.Key == "" && c.Sender == nil {
		return errors.New("honeycomb_key key required for honeycomb")
	}
	return nil
}

func (c *Config) sender() transmission.Sender {
	w := c.Writer
	if w == nil {
		w = os.Stderr
	}

	senders := &MultiSender{}
	switch {
	case c.SendTraces && c.Sender != nil:
		senders.Senders = append(senders.Senders, c.Sender)
	case c.SendTraces:
		senders.Senders = append(senders.Senders, &transmission.Honeycomb{
			MaxBatchSize:         libhoney.DefaultMaxBatchSize,
			BatchTimeout:         libhoney.DefaultBatchTimeout,
			MaxConcurrentBatches: libhoney.DefaultMaxConcurrentBatches,
			PendingWorkCapacity:  libhoney.DefaultPendingWorkCapacity,
			UserAgentAddition:    c.ServiceName,
		})
	}

	switch c.Format {
	case "none":
	case "text":
		senders.Senders = append(senders.Senders, &TextSender{w: w})
	case "colour", "color":
		senders.Senders = append(senders.Senders, &TextSender{w: w, colour: true})
	default:
		senders.Senders = append(senders.Senders, &transmission.WriterSender{W: w})
	}
	return senders
}

type provider struct {
	metrics o11y.ClosableMetricsProvider
}

// New configures the beeline, which is process wide, and returns a provider over it.
func New(conf Config) o11y.Provider {
	// beeline ignores this error in its own constructor too
	c, _ := libhoney.NewClient(libhoney.ClientConfig{
		APIKey:       conf.Key,
		Dataset:      conf.Dataset,
		APIHost:      conf.Host,
		Transmission: conf.sender(),
	})

	beeline.Init(beeline.Config{
		Client:      c,
		Debug:       conf.Debug,
		WriteKey:    conf.Key,
		ServiceName: conf.ServiceName,
		PresendHook: metricsHook(conf.Metrics),
	})
	return &provider{metrics: conf.Metrics}
}

func (p *provider) AddGlobalField(key string, val interface{}) {
	checkKey(key)
	client.AddField(key, val)
}

func (p *provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	var s *trace.Span
	if parent := trace.GetSpanFromContext(ctx); parent != nil {
		ctx, s = parent.CreateAsyncChild(ctx)
	} else {
		ctx, _ = trace.NewTrace(ctx, nil)
		s = trace.GetSpanFromContext(ctx)
	}
	s.AddField("name", name)
	return ctx, wrap(s)
}

func (p *provider) GetSpan(ctx context.Context) o11y.Span {
	return wrap(trace.GetSpanFromContext(ctx))
}

func (p *provider) AddField(ctx context.Context, key string, val interface{}) {
	checkKey(key)
	beeline.AddField(ctx, key, val)
}

func (p *provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := beeline.StartSpan(ctx, name)
	sp := wrap(s)
	for _, f := range fields {
		sp.AddField(f.Key, f.Value)
	}
	sp.End()
}

func (p *provider) InjectTrace(ctx context.Context, h http.Header) {
	if s := trace.GetSpanFromContext(ctx); s != nil {
		h.Set(propagation.TracePropagationHTTPHeader, s.SerializeHeaders())
	}
}

func (p *provider) ContinueTrace(ctx context.Context, h http.Header) (context.Context, o11y.Span) {
	var pc *propagation.PropagationContext
	if v := h.Get(propagation.TracePropagationHTTPHeader); v != "" {
		// a malformed header starts a fresh trace
		pc, _ = propagation.UnmarshalHoneycombTraceContext(v)
	}
	ctx, tr := trace.NewTrace(ctx, pc)
	return ctx, wrap(tr.GetRootSpan())
}

func (p *provider) MetricsProvider() o11y.MetricsProvider {
	if p.metrics == nil {
		return nil
	}
	return p.metrics
}

func (p *provider) Close(context.Context) {
	beeline.Close()
	if p.metrics != nil {
		_ = p.metrics.Close()
	}
}

type span struct {
	s       *trace.Span
	metrics []o11y.Metric
}

func wrap(s *trace.Span) o11y.Span {
	if s == nil {
		return nil
	}
	return &span{s: s}
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	checkKey(key)
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.s.AddField(key, val)
}

func (s *span) RecordMetric(m o11y.Metric) {
	s.metrics = append(s.metrics, m)
	s.s.AddField(metricKey, s.metrics)
}

func (s *span) End() {
	s.s.Send()
}

// checkKey panics on a dash in a field name, which statsd tags and honeycomb queries mangle.
func checkKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
