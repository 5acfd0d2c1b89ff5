package sqlite

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/netmonitor/db"
	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store/storetest"
	"github.com/circleci/netmonitor/testing/testcontext"
)

func newStore(t *testing.T, path string) *Store {
	t.Helper()
	ctx := testcontext.Background()
	conn, err := db.New(ctx, "test", db.Config{Path: path})
	assert.Assert(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s, err := New(ctx, db.NewTxManager(conn))
	assert.Assert(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(testcontext.Background(), t, newStore(t, ":memory:"))
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := testcontext.Background()
	path := filepath.Join(t.TempDir(), "collector.db")

	first := newStore(t, path)
	assert.Assert(t, first.Log(ctx, storetest.Entry("http://google.com", 200, "main.main")))
	assert.Assert(t, first.Log(ctx, storetest.Entry("http://google.com", 200, "main.main")))
	want, err := first.Retrieve(ctx)
	assert.Assert(t, err)

	second := newStore(t, path)
	got, err := second.Retrieve(ctx)
	assert.Assert(t, err)
	assert.Check(t, cmp.DeepEqual(got, want))
	assert.Check(t, cmp.Equal(got.Records["http://google.com"].Count, 2))
}

func TestStore_TracebacksKeepFrameBoundaries(t *testing.T) {
	ctx := testcontext.Background()
	s := newStore(t, ":memory:")

	assert.Assert(t, s.Log(ctx, storetest.Entry("http://a.com", 200, "ab", "c")))
	assert.Assert(t, s.Log(ctx, storetest.Entry("http://a.com", 200, "a", "bc")))

	snap, err := s.Retrieve(ctx)
	assert.Assert(t, err)
	assert.Check(t, cmp.DeepEqual(snap.Records["http://a.com"].Tracebacks.Sorted(), []record.Trace{
		{"a", "bc"},
		{"ab", "c"},
	}))
}

func TestStore_DomainDerivedFromURL(t *testing.T) {
	ctx := testcontext.Background()
	s := newStore(t, ":memory:")

	e := storetest.Entry("http://localhost:8080/x", 200)
	e.Domain = ""
	assert.Assert(t, s.Log(ctx, e))

	snap, err := s.Retrieve(ctx)
	assert.Assert(t, err)
	assert.Check(t, cmp.DeepEqual(snap.Summary.Domains.Sorted(), []string{"localhost:8080"}))
}

func TestStore_Gauges(t *testing.T) {
	ctx := testcontext.Background()
	s := newStore(t, ":memory:")
	assert.Assert(t, s.Log(ctx, storetest.Entry("http://a.com/1", 200)))
	assert.Assert(t, s.Log(ctx, storetest.Entry("http://a.com/2", 200)))
	assert.Assert(t, s.Log(ctx, storetest.Entry("http://a.com/2", 200)))

	assert.Check(t, cmp.Equal(s.MetricName(), "store"))
	assert.Check(t, cmp.DeepEqual(s.Gauges(ctx), map[string]float64{
		"total_requests": 3,
		"urls":           2,
		"domains":        1,
	}))
}
