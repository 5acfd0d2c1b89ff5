package fakestatsd

import (
	"testing"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"
)

func TestServer(t *testing.T) {
	s := New(t)

	stats, err := statsd.New(s.Addr(),
		statsd.WithNamespace("netmonitor."),
		statsd.WithTags([]string{"version:1.2.3"}),
	)
	assert.Assert(t, err)

	assert.Check(t, stats.Count("calls", 3, []string{"host:example.com"}, 1))
	assert.Check(t, stats.Close())

	poll.WaitOn(t, func(t poll.LogT) poll.Result {
		if len(s.Named("netmonitor.calls")) == 0 {
			return poll.Continue("no metrics received")
		}
		return poll.Success()
	}, poll.WithTimeout(5*time.Second))

	m := s.Named("netmonitor.calls")[0]
	assert.Check(t, cmp.Equal(m.Value, "3|c"))
	assert.Check(t, m.HasTag("version:1.2.3"))
	assert.Check(t, m.HasTag("host:example.com"))

	s.Reset()
	assert.Check(t, cmp.Len(s.Metrics(), 0))
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Metric
		ok   bool
	}{
		{raw: "a.b:1|c", want: Metric{Name: "a.b", Value: "1|c"}, ok: true},
		{raw: "a:2.5|ms|@0.5|#x:y,z", want: Metric{Name: "a", Value: "2.5|ms", Tags: []string{"x:y", "z"}}, ok: true},
		{raw: "a:7|g|#t", want: Metric{Name: "a", Value: "7|g", Tags: []string{"t"}}, ok: true},
		{raw: "_sc|check|0", ok: false},
		{raw: "nonsense", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parse(tt.raw)
			assert.Check(t, cmp.Equal(ok, tt.ok))
			if tt.ok {
				assert.Check(t, cmp.DeepEqual(got, tt.want))
			}
		})
	}
}
