package stack_test

import (
	"net/http"
	"reflect"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/netmonitor/stack"
)

func outer(i stack.Inspector) []string {
	return inner(i)
}

func inner(i stack.Inspector) []string {
	return i.Capture(0)
}

func TestInspector_Capture(t *testing.T) {
	trace := outer(stack.Inspector{})
	assert.Assert(t, len(trace) >= 3)

	t.Run("Innermost frame is the caller of Capture", func(t *testing.T) {
		last := trace[len(trace)-1]
		assert.Check(t, strings.HasPrefix(last, "github.com/circleci/netmonitor/stack_test.inner\n\t"), last)
		assert.Check(t, cmp.Contains(last, "stack_test.go:"))
	})

	t.Run("Order is outermost first", func(t *testing.T) {
		assert.Check(t, strings.HasPrefix(trace[len(trace)-2], "github.com/circleci/netmonitor/stack_test.outer\n"))
		assert.Check(t, strings.HasPrefix(trace[len(trace)-3],
			"github.com/circleci/netmonitor/stack_test.TestInspector_Capture\n"))
	})

	t.Run("Identical call sites give identical traces", func(t *testing.T) {
		var traces [][]string
		for n := 0; n < 2; n++ {
			traces = append(traces, outer(stack.Inspector{}))
		}
		assert.Check(t, cmp.DeepEqual(traces[0], traces[1]))
	})
}

func TestInspector_Markers(t *testing.T) {
	marker := stack.PackageOf(reflect.ValueOf(outer).Pointer())
	assert.Check(t, cmp.Equal(marker, "github.com/circleci/netmonitor/stack_test."))

	i := stack.Inspector{Markers: []string{marker}}
	trace := outer(i)
	for _, f := range trace {
		assert.Check(t, !strings.HasPrefix(f, marker), f)
	}
	assert.Check(t, len(trace) > 0)
}

func TestInspector_Clean(t *testing.T) {
	i := stack.Inspector{Markers: []string{"example.com/mon."}}
	got := i.Clean([]string{
		"main.main\n\t/app/main.go:1",
		"example.com/mon.(*transport).RoundTrip\n\t/mon/transport.go:9",
		"example.com/mon_test.TestX\n\t/mon/x_test.go:9",
	})
	assert.Check(t, cmp.DeepEqual(got, []string{
		"main.main\n\t/app/main.go:1",
		"example.com/mon_test.TestX\n\t/mon/x_test.go:9",
	}))
}

func TestPackageOf(t *testing.T) {
	assert.Check(t, cmp.Equal(stack.PackageOf(reflect.ValueOf(strings.Cut).Pointer()), "strings."))
	assert.Check(t, cmp.Equal(stack.PackageOf(reflect.ValueOf(stack.Format).Pointer()),
		"github.com/circleci/netmonitor/stack."))
}

type valueTripper struct{}

func TestMethodFrame(t *testing.T) {
	tests := []struct {
		name string
		v    interface{}
		want string
	}{
		{name: "pointer", v: &http.Transport{}, want: "net/http.(*Transport).RoundTrip"},
		{name: "value", v: valueTripper{}, want: "github.com/circleci/netmonitor/stack_test.valueTripper.RoundTrip"},
		{name: "func type", v: http.HandlerFunc(nil), want: "net/http.HandlerFunc.RoundTrip"},
		{name: "unnamed", v: struct{}{}, want: ""},
		{name: "nil", v: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Check(t, cmp.Equal(stack.MethodFrame(tt.v, "RoundTrip"), tt.want))
		})
	}
}
