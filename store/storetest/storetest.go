// Package storetest holds the behaviour every store.Store must share, so the local, remote and
// sqlite backends are checked against the same expectations.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store"
)

// Entry returns a canned entry for url with the given status and trace.
func Entry(url string, status int, trace ...string) record.Entry {
	return record.Entry{
		URL:                url,
		Domain:             record.Host(url),
		Method:             "GET",
		ResponseContent:    fmt.Sprintf("body-%d", status),
		ResponseStatusCode: status,
		Duration:           0.25,
		Traceback:          trace,
	}
}

// Run exercises s, which must start empty.
//
//nolint:funlen
func Run(ctx context.Context, t *testing.T, s store.Store) {
	t.Helper()

	t.Run("Starts empty", func(t *testing.T) {
		snap, err := s.Retrieve(ctx)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(snap, record.NewSnapshot()))
	})

	t.Run("Log calls", func(t *testing.T) {
		for _, e := range []record.Entry{
			Entry("http://google.com", 200, "main.main", "main.get"),
			Entry("http://google.com", 200, "main.main", "main.get"),
			Entry("http://google.com", 500, "main.main", "main.retry"),
			Entry("http://facebook.com?x=1", 200),
		} {
			assert.Assert(t, s.Log(ctx, e))
		}
		post := Entry("http://facebook.com?x=1", 201)
		post.Method = "POST"
		assert.Assert(t, s.Log(ctx, post))
	})

	t.Run("Check aggregation", func(t *testing.T) {
		snap, err := s.Retrieve(ctx)
		assert.Assert(t, err)

		assert.Check(t, cmp.Equal(snap.Summary.TotalRequests, 5))
		assert.Check(t, cmp.Equal(snap.Summary.Duration, 1.25))
		assert.Check(t, cmp.DeepEqual(snap.Summary.Domains.Sorted(), []string{"facebook.com", "google.com"}))
		assert.Check(t, cmp.DeepEqual(snap.URLs(), []string{"http://facebook.com?x=1", "http://google.com"}))

		g := snap.Records["http://google.com"]
		assert.Assert(t, g != nil)
		assert.Check(t, cmp.Equal(g.Count, 3))
		assert.Check(t, cmp.DeepEqual(g.Methods.Sorted(), []string{"GET"}))
		assert.Check(t, cmp.DeepEqual(g.Tracebacks.Sorted(), []record.Trace{
			{"main.main", "main.get"},
			{"main.main", "main.retry"},
		}))
		assert.Check(t, cmp.DeepEqual(g.Responses.Sorted(), []record.Response{
			{StatusCode: 200, Content: "body-200"},
			{StatusCode: 500, Content: "body-500"},
		}))

		f := snap.Records["http://facebook.com?x=1"]
		assert.Assert(t, f != nil)
		assert.Check(t, cmp.Equal(f.Count, 2))
		assert.Check(t, cmp.DeepEqual(f.Methods.Sorted(), []string{"GET", "POST"}))
		assert.Check(t, cmp.DeepEqual(f.Tracebacks.Sorted(), []record.Trace{{}}))
	})

	t.Run("Check retrieve does not mutate", func(t *testing.T) {
		a, err := s.Retrieve(ctx)
		assert.Assert(t, err)
		a.Records["http://google.com"].Count = 100
		b, err := s.Retrieve(ctx)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(b.Records["http://google.com"].Count, 3))
	})

	t.Run("Clear", func(t *testing.T) {
		assert.Assert(t, s.Clear(ctx))
		snap, err := s.Retrieve(ctx)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(snap, record.NewSnapshot()))
	})

	t.Run("Concurrent logs keep counts consistent", func(t *testing.T) {
		const workers, calls = 8, 25
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			w := w
			g.Go(func() error {
				for i := 0; i < calls; i++ {
					u := fmt.Sprintf("http://host-%d.com/path", (w+i)%3)
					if err := s.Log(gctx, Entry(u, 200, "worker")); err != nil {
						return err
					}
				}
				return nil
			})
		}
		assert.Assert(t, g.Wait())

		snap, err := s.Retrieve(ctx)
		assert.Assert(t, err)
		total := 0
		for _, r := range snap.Records {
			total += r.Count
		}
		assert.Check(t, cmp.Equal(snap.Summary.TotalRequests, workers*calls))
		assert.Check(t, cmp.Equal(total, workers*calls))
		assert.Check(t, cmp.Len(snap.Summary.Domains, 3))
	})

	t.Run("Clear again leaves no carry over", func(t *testing.T) {
		assert.Assert(t, s.Clear(ctx))
		assert.Assert(t, s.Log(ctx, Entry("http://google.com", 200)))
		snap, err := s.Retrieve(ctx)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(snap.Summary.TotalRequests, 1))
		assert.Check(t, cmp.Len(snap.Records, 1))
	})
}
