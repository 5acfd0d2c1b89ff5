package httprecorder

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Response is the canned answer for a host.
type Response struct {
	StatusCode int
	Body       string
	// Err fails the round trip itself.
	Err error
	// BodyErr fails reading the body after Body has been read.
	BodyErr error
}

// Transport answers every request from its canned responses and records it. Hosts without a
// response get a 200 with the body "ok".
type Transport struct {
	*RequestRecorder

	mu        sync.RWMutex
	responses map[string]Response
}

func NewTransport() *Transport {
	return &Transport{
		RequestRecorder: New(),
		responses:       map[string]Response{},
	}
}

// Respond sets the response for requests to host, which includes any port.
func (t *Transport) Respond(host string, r Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[host] = r
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Record(req); err != nil {
		return nil, err
	}

	t.mu.RLock()
	r, ok := t.responses[req.URL.Host]
	t.mu.RUnlock()
	if !ok {
		r = Response{StatusCode: http.StatusOK, Body: "ok"}
	}
	if r.Err != nil {
		return nil, r.Err
	}

	var body io.Reader = bytes.NewReader([]byte(r.Body))
	if r.BodyErr != nil {
		body = io.MultiReader(body, failingReader{err: r.BodyErr})
	}
	return &http.Response{
		Status:        strconv.Itoa(r.StatusCode) + " " + http.StatusText(r.StatusCode),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Body:          io.NopCloser(body),
		ContentLength: -1,
		Request:       req,
	}, nil
}

type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
