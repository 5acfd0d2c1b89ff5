// Package o11y is the tracing and metrics facade used across netmonitor.
//
// A Provider travels on the context. Code that finds none gets a provider that discards
// everything, so library callers never have to configure observability to use the monitor.
package o11y

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/DataDog/datadog-go/statsd"
)

type Provider interface {
	// AddGlobalField attaches a field to every span this provider emits, eg. service or version.
	AddGlobalField(key string, val interface{})

	// StartSpan opens a span as a child of any span in ctx, or as the root of a new trace.
	// End it with o11y.End:
	//
	//	ctx, span := o11y.StartSpan(ctx, "remote: log")
	//	defer o11y.End(span, &err)
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan returns the span in ctx, or nil.
	GetSpan(ctx context.Context) Span

	// AddField adds an "app." prefixed field to the span in ctx.
	AddField(ctx context.Context, key string, val interface{})

	// Log emits a single zero duration event.
	Log(ctx context.Context, name string, fields ...Pair)

	// InjectTrace writes the trace in ctx into outbound request headers.
	InjectTrace(ctx context.Context, h http.Header)

	// ContinueTrace starts a root span that joins any trace carried by inbound request headers.
	ContinueTrace(ctx context.Context, h http.Header) (context.Context, Span)

	MetricsProvider() MetricsProvider

	Close(ctx context.Context)
}

type Span interface {
	// AddField adds an "app." prefixed field.
	AddField(key string, val interface{})

	// AddRawField adds a field with no prefix. It is meant for plumbing such as http.status_code
	// or db.system.
	AddRawField(key string, val interface{})

	// RecordMetric asks the provider to emit metric once the span ends.
	RecordMetric(metric Metric)

	End()
}

type MetricType string

const (
	MetricTimer MetricType = "timer"
	MetricGauge MetricType = "gauge"
	MetricCount MetricType = "count"
)

// Metric describes a metric derived from a span's fields when it ends.
type Metric struct {
	Type MetricType
	Name string
	// Field holds the value. Timers default to the span duration.
	Field string
	// TagFields are span fields turned into "name:value" tags.
	TagFields []string
}

func Timing(name string, tagFields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: "duration_ms", TagFields: tagFields}
}

func Incr(name string, tagFields ...string) Metric {
	return Metric{Type: MetricCount, Name: name, TagFields: tagFields}
}

func Gauge(name, valueField string, tagFields ...string) Metric {
	return Metric{Type: MetricGauge, Name: name, Field: valueField, TagFields: tagFields}
}

// MetricsProvider is satisfied by the datadog statsd client.
type MetricsProvider interface {
	Histogram(name string, value float64, tags []string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
}

type ClosableMetricsProvider interface {
	MetricsProvider
	io.Closer
}

type providerKey struct{}

func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider in ctx, or one that discards everything.
func FromContext(ctx context.Context) Provider {
	if p, ok := ctx.Value(providerKey{}).(Provider); ok {
		return p
	}
	return defaultProvider
}

func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

func AddField(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddField(ctx, key, val)
}

func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError emits a zero duration event carrying err.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	End(span, &err)
}

// End records the outcome held in *err on span and ends it. Pass the address of a named return:
//
//	defer o11y.End(span, &err)
func End(span Span, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	AddResultToSpan(span, e)
	span.End()
}

// AddResultToSpan sets the result field to success, error or canceled. Warnings and context
// cancellation are recorded under "warning" and do not count as errors.
func AddResultToSpan(span Span, err error) {
	switch {
	case err == nil:
		span.AddRawField("result", "success")
	case IsWarning(err):
		span.AddRawField("result", "success")
		span.AddRawField("warning", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		span.AddRawField("result", "canceled")
		span.AddRawField("warning", err.Error())
	default:
		span.AddRawField("result", "error")
		span.AddRawField("error", err.Error())
	}
}

type Pair struct {
	Key   string
	Value interface{}
}

func Field(key string, value interface{}) Pair {
	return Pair{Key: key, Value: value}
}

// HandlePanic records a recovered value and the stack on span and returns it as an error.
func HandlePanic(span Span, recovered interface{}) error {
	span.AddRawField("panic", recovered)
	span.AddRawField("has_panicked", "true")
	span.AddRawField("stack", string(debug.Stack()))
	span.RecordMetric(Incr("panics", "name"))
	return fmt.Errorf("panic handled: %+v", recovered)
}

// InjectTrace writes the trace in ctx into h using the provider in ctx.
func InjectTrace(ctx context.Context, h http.Header) {
	FromContext(ctx).InjectTrace(ctx, h)
}

var defaultProvider Provider = noopProvider{}

type noopProvider struct{}

func (noopProvider) AddGlobalField(string, interface{}) {}

func (noopProvider) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopProvider) GetSpan(context.Context) Span { return noopSpan{} }

func (noopProvider) AddField(context.Context, string, interface{}) {}

func (noopProvider) Log(context.Context, string, ...Pair) {}

func (noopProvider) InjectTrace(context.Context, http.Header) {}

func (noopProvider) ContinueTrace(ctx context.Context, _ http.Header) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopProvider) MetricsProvider() MetricsProvider { return &statsd.NoOpClient{} }

func (noopProvider) Close(context.Context) {}

type noopSpan struct{}

func (noopSpan) AddField(string, interface{})    {}
func (noopSpan) AddRawField(string, interface{}) {}
func (noopSpan) RecordMetric(Metric)             {}
func (noopSpan) End()                            {}
