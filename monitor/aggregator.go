package monitor

import (
	"context"

	"github.com/circleci/netmonitor/filter"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store"
)

// Aggregator gates entries before they reach a Store. An entry is dropped without error when
// its domain is not accepted or its trace shows it came through a mocking library.
type Aggregator struct {
	Store   store.Store
	Domains *filter.Domains
	Mocked  filter.TracePredicate
}

var _ store.Store = (*Aggregator)(nil)

func (a *Aggregator) Log(ctx context.Context, e record.Entry) error {
	return a.log(ctx, e, e.Traceback)
}

// log is Log with the trace given to Mocked supplied separately from the one stored.
func (a *Aggregator) log(ctx context.Context, e record.Entry, inspect []string) error {
	if e.Domain == "" {
		e.Domain = record.Host(e.URL)
	}
	if !a.Domains.Accepts(e.Domain) {
		o11y.AddField(ctx, "filtered", "domain")
		return nil
	}
	if a.Mocked != nil && a.Mocked(inspect) {
		o11y.AddField(ctx, "filtered", "mock")
		return nil
	}
	return a.Store.Log(ctx, e)
}

func (a *Aggregator) Retrieve(ctx context.Context) (record.Snapshot, error) {
	return a.Store.Retrieve(ctx)
}

func (a *Aggregator) Clear(ctx context.Context) error {
	return a.Store.Clear(ctx)
}
