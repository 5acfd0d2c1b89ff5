// Package fakemetrics records metrics in memory so tests can assert on what an o11y provider
// emitted.
package fakemetrics

import (
	"fmt"
	"sync"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type Call struct {
	Metric   string
	Name     string
	Value    float64
	ValueInt int64
	Tags     []string
	Rate     float64
}

// CMPCalls compares calls regardless of order, with timings only approximately equal.
var CMPCalls = gocmp.Options{
	cmpopts.EquateApprox(0, 10),
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(x, y Call) bool {
		const format = "%s|%s|%s"
		return fmt.Sprintf(format, x.Metric, x.Name, x.Tags) <
			fmt.Sprintf(format, y.Metric, y.Name, y.Tags)
	}),
}

// Provider satisfies o11y.ClosableMetricsProvider.
type Provider struct {
	mu     sync.RWMutex
	calls  []Call
	closed bool
}

func (p *Provider) Calls() []Call {
	p.mu.RLock()
	defer p.mu.RUnlock()

	calls := make([]Call, len(p.calls))
	copy(calls, p.calls)
	return calls
}

// Named returns the calls recorded under the metric name.
func (p *Provider) Named(name string) []Call {
	var calls []Call
	for _, c := range p.Calls() {
		if c.Name == name {
			calls = append(calls, c)
		}
	}
	return calls
}

func (p *Provider) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Provider) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	p.record(Call{Metric: "timer", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Gauge(name string, value float64, tags []string, rate float64) error {
	p.record(Call{Metric: "gauge", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Count(name string, value int64, tags []string, rate float64) error {
	p.record(Call{Metric: "count", Name: name, ValueInt: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Histogram(name string, value float64, tags []string, rate float64) error {
	p.record(Call{Metric: "histogram", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Provider) record(c Call) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}
