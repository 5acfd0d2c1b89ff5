// Package monitor records the outbound HTTP calls a process makes through net/http clients.
//
// A Monitor decorates the Transport of each client it instruments. Calls that complete are
// aggregated per URL, either in process or in a shared collector service, and can be read back
// with Refresh or rendered with Report.
//
//	m, err := monitor.New(ctx, monitor.Config{Domains: []string{`google\.com`}})
//	...
//	defer m.Stop(ctx, true)
//	... exercise the code under test ...
//	err = m.Report(ctx, report.Options{URLs: true})
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/circleci/netmonitor/filter"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/report"
	"github.com/circleci/netmonitor/stack"
	"github.com/circleci/netmonitor/store"
	"github.com/circleci/netmonitor/store/memory"
	"github.com/circleci/netmonitor/store/remote"
)

type Config struct {
	// Domains are regular expressions matched anywhere in the request host. An empty list
	// accepts every host.
	Domains []string
	// CollectorURL is the address of a collector service shared with other processes.
	// When empty the scope is held in process.
	CollectorURL string
	// ReadOnly leaves every client untouched. It is used when another monitor in the same
	// scope already intercepts calls and this one only reads the results.
	ReadOnly bool
	// Clients to instrument. Defaults to http.DefaultClient.
	Clients []*http.Client
	// MockMarkers are substrings of call path frames that identify a mocking library.
	// Defaults to filter.DefaultMockMarkers.
	MockMarkers []string
	// MockPredicate is consulted alongside MockMarkers for mocks that need more than a substring match.
	MockPredicate filter.TracePredicate
	// Timeout bounds every round trip to the collector service. Defaults to 5 seconds.
	Timeout time.Duration
}

type Monitor struct {
	agg       *Aggregator
	inspector stack.Inspector
	provider  o11y.Provider
	stopped   atomic.Bool

	mu      sync.Mutex
	handles []*Handle
	snap    record.Snapshot
	errs    []error
}

// frames from this package, the http client and the runtime are not part of the caller's path
var internalMarkers = func() []string {
	pc, _, _, _ := runtime.Caller(0)
	return []string{stack.PackageOf(pc), "net/http.", "runtime."}
}()

// New starts a monitoring scope and, unless cfg.ReadOnly is set, instruments cfg.Clients.
func New(ctx context.Context, cfg Config) (m *Monitor, err error) {
	ctx, span := o11y.StartSpan(ctx, "monitor: new")
	defer o11y.End(span, &err)

	if len(cfg.Clients) == 0 {
		cfg.Clients = []*http.Client{http.DefaultClient}
	}
	if cfg.MockMarkers == nil {
		cfg.MockMarkers = filter.DefaultMockMarkers
	}

	domains, err := filter.NewDomains(cfg.Domains...)
	if err != nil {
		return nil, err
	}

	var s store.Store = memory.New()
	if cfg.CollectorURL != "" {
		s = remote.New(remote.Config{BaseURL: cfg.CollectorURL, Timeout: cfg.Timeout})
		span.AddField("collector_url", cfg.CollectorURL)
	}

	m = &Monitor{
		agg: &Aggregator{
			Store:   s,
			Domains: domains,
			Mocked:  filter.Any(filter.MockMarkers(cfg.MockMarkers...), cfg.MockPredicate),
		},
		inspector: stack.Inspector{Markers: internalMarkers},
		provider:  o11y.FromContext(ctx),
		snap:      record.NewSnapshot(),
	}

	span.AddField("read_only", cfg.ReadOnly)
	if cfg.ReadOnly {
		return m, nil
	}
	for _, c := range cfg.Clients {
		if err := m.Instrument(c); err != nil {
			_ = m.restore()
			return nil, err
		}
	}
	return m, nil
}

// Instrument intercepts calls made through client until the monitor is stopped.
func (m *Monitor) Instrument(client *http.Client) error {
	if m.stopped.Load() {
		return fmt.Errorf("%w: monitor is stopped", ErrInterception)
	}
	h := NewHandle(client, m.RoundTripper)
	if err := h.Install(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles = append(m.handles, h)
	return nil
}

// RoundTripper decorates next so its calls are recorded, for clients the monitor does not own.
// A nil next uses http.DefaultTransport. Once the monitor is stopped it passes calls straight through.
func (m *Monitor) RoundTripper(next http.RoundTripper) http.RoundTripper {
	return &transport{next: next, m: m}
}

// observe logs a completed call. raw is the full captured stack; the monitor's own frames are
// removed before it is stored. under names the transport the call went to, which is not on the
// stack yet, so a mock installed beneath the monitor is still detected.
func (m *Monitor) observe(req *http.Request, status int, body []byte, d time.Duration, raw []string, under string) {
	ctx := o11y.WithProvider(context.WithoutCancel(req.Context()), m.provider)
	ctx, span := o11y.StartSpan(ctx, "monitor: call")
	var err error
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("monitor.call", "http.host", "http.status_code", "result"))

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	e := record.Entry{
		URL:                req.URL.String(),
		Domain:             req.URL.Host,
		Method:             method,
		ResponseContent:    record.Content(body),
		ResponseStatusCode: status,
		Duration:           d.Seconds(),
		Traceback:          m.inspector.Clean(raw),
	}
	inspect := e.Traceback
	if under != "" {
		inspect = append(inspect[:len(inspect):len(inspect)], m.inspector.Clean([]string{under})...)
	}
	span.AddRawField("http.host", e.Domain)
	span.AddRawField("http.method", method)
	span.AddRawField("http.status_code", strconv.Itoa(status))
	span.AddField("url", e.URL)

	err = m.agg.log(ctx, e, inspect)
	if err != nil {
		o11y.LogError(ctx, "monitor: log", err, o11y.Field("url", e.URL))
		m.mu.Lock()
		m.errs = append(m.errs, fmt.Errorf("log %s %s: %w", method, e.URL, err))
		m.mu.Unlock()
	}
}

// takeErrors returns the log failures collected since the last call, joined.
func (m *Monitor) takeErrors() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := errors.Join(m.errs...)
	m.errs = nil
	return err
}

// Refresh pulls the current scope from the store. Any calls that failed to log since the last
// Refresh, Report or Stop are returned alongside a retrieval failure.
func (m *Monitor) Refresh(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "monitor: refresh")
	defer o11y.End(span, &err)

	logErr := m.takeErrors()
	snap, err := m.agg.Retrieve(ctx)
	if err != nil {
		return errors.Join(logErr, err)
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	span.AddField("total_requests", snap.Summary.TotalRequests)
	return logErr
}

// Snapshot returns the scope as of the last Refresh.
func (m *Monitor) Snapshot() record.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone()
}

// Report refreshes and renders the scope. With opts.Stop the monitor is then stopped, keeping
// the scope's data.
func (m *Monitor) Report(ctx context.Context, opts report.Options) (err error) {
	ctx, span := o11y.StartSpan(ctx, "monitor: report")
	defer o11y.End(span, &err)

	refreshErr := m.Refresh(ctx)
	err = report.Write(m.Snapshot(), opts)
	err = errors.Join(refreshErr, err)
	if opts.Stop {
		err = errors.Join(err, m.Stop(ctx, false))
	}
	return err
}

// Stop restores every instrumented client and, with tearDown, clears the scope. Stopping a
// stopped monitor does nothing.
func (m *Monitor) Stop(ctx context.Context, tearDown bool) (err error) {
	ctx, span := o11y.StartSpan(ctx, "monitor: stop")
	defer o11y.End(span, &err)
	span.AddField("tear_down", tearDown)

	if m.stopped.Swap(true) {
		return nil
	}
	err = errors.Join(m.takeErrors(), m.restore())
	if tearDown {
		err = errors.Join(err, m.agg.Clear(ctx))
	}
	return err
}

// restore puts back client transports in the reverse order they were wrapped.
func (m *Monitor) restore() error {
	m.mu.Lock()
	handles := m.handles
	m.handles = nil
	m.mu.Unlock()

	var errs []error
	for i := len(handles) - 1; i >= 0; i-- {
		if err := handles[i].Restore(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
