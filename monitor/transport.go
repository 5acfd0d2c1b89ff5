package monitor

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/circleci/netmonitor/stack"
)

// transport decorates a RoundTripper. Every completed round trip is timed, its body buffered and
// its call path captured, and then handed to the monitor before the response is returned.
type transport struct {
	next http.RoundTripper
	m    *Monitor
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	if t.m.stopped.Load() {
		return next.RoundTrip(req)
	}

	start := time.Now()
	res, err := next.RoundTrip(req)
	if err != nil {
		return res, err
	}

	body, readErr := readBody(res)
	duration := time.Since(start)
	if readErr != nil {
		// the caller sees the same bytes and then the same failure, and nothing is recorded
		res.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{err: readErr}))
		return res, nil
	}
	res.Body = io.NopCloser(bytes.NewReader(body))

	t.m.observe(req, res.StatusCode, body, duration, stack.Inspector{}.Capture(0), stack.MethodFrame(next, "RoundTrip"))
	return res, nil
}

func readBody(res *http.Response) ([]byte, error) {
	if res.Body == nil {
		return nil, nil
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}
