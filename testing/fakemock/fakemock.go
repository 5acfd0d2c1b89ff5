// Package fakemock stands in for an HTTP mocking library. Wrapped around an instrumented
// transport its frames appear in the call path of every request it forwards. Installed beneath
// one, as a client's transport or http.DefaultTransport, it is found by its type instead.
package fakemock

import (
	"net/http"
	"sync/atomic"
)

// Marker identifies this package's frames in a call path.
const Marker = "github.com/circleci/netmonitor/testing/fakemock."

type Transport struct {
	Next  http.RoundTripper
	calls atomic.Int64
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return t.Next.RoundTrip(req)
}

// Calls is the number of requests forwarded so far.
func (t *Transport) Calls() int {
	return int(t.calls.Load())
}
