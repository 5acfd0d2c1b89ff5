package filter

import (
	"strings"
)

// TracePredicate inspects a captured call path, outermost frame first.
type TracePredicate func(trace []string) bool

// DefaultMockMarkers are import paths of libraries that fake HTTP traffic. A mock wrapping an
// instrumented transport shows up in the captured frames above it. A mock beneath the monitor,
// set as the client's transport or as http.DefaultTransport, is matched by the name of its
// RoundTrip method, which the monitor adds as the innermost frame.
var DefaultMockMarkers = []string{
	"github.com/jarcoal/httpmock",
	"github.com/h2non/gock",
	"gopkg.in/h2non/gock",
	"github.com/dnaeon/go-vcr",
	"gopkg.in/dnaeon/go-vcr",
	"github.com/seborama/govcr",
}

// MockMarkers returns a predicate that is true when any frame contains any of markers.
func MockMarkers(markers ...string) TracePredicate {
	markers = append([]string(nil), markers...)
	return func(trace []string) bool {
		for _, frame := range trace {
			for _, m := range markers {
				if m != "" && strings.Contains(frame, m) {
					return true
				}
			}
		}
		return false
	}
}

// Any combines predicates; the result is true when one of them is.
func Any(preds ...TracePredicate) TracePredicate {
	return func(trace []string) bool {
		for _, p := range preds {
			if p != nil && p(trace) {
				return true
			}
		}
		return false
	}
}
