package httprecorder

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestRequest_Decode(t *testing.T) {
	// language=json
	const body = `{"a": "value-a", "b": "value-b"}`
	req := Request{Body: []byte(body)}
	m := make(map[string]string)
	err := req.Decode(&m)
	assert.Assert(t, err)
	assert.Check(t, cmp.DeepEqual(m, map[string]string{
		"a": "value-a",
		"b": "value-b",
	}))
	assert.Check(t, cmp.Equal(req.StringBody(), body))
}

func TestRequestRecorder(t *testing.T) {
	r := New()

	t.Run("Record requests", func(t *testing.T) {
		req := newRequest(t, "POST", "https://hostname-a/path-a", "the-body-a", http.Header{"a": []string{"value-a"}})
		assert.Assert(t, r.Record(req))

		b, err := io.ReadAll(req.Body)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(string(b), "the-body-a"), "body must still be readable")

		assert.Assert(t, r.Record(newRequest(t, "GET", "https://hostname-b/path-b", "", nil)))
	})

	t.Run("Check requests", func(t *testing.T) {
		assert.Check(t, cmp.Len(r.AllRequests(), 2))
		assert.Check(t, cmp.Equal(r.CountHost("hostname-a"), 1))
		assert.Check(t, cmp.DeepEqual(r.AllRequests()[0], Request{
			Method: "POST",
			URL:    newURL(t, "https://hostname-a/path-a"),
			Header: http.Header{"a": []string{"value-a"}},
			Body:   []byte("the-body-a"),
		}))
		assert.Check(t, cmp.Equal(r.LastRequest().Method, "GET"))
	})

	t.Run("Reset", func(t *testing.T) {
		r.Reset()
		assert.Check(t, cmp.Len(r.AllRequests(), 0))
		assert.Check(t, r.LastRequest() == nil)
	})
}

func TestTransport(t *testing.T) {
	tr := NewTransport()
	client := &http.Client{Transport: tr}
	tr.Respond("b.com", Response{StatusCode: http.StatusTeapot, Body: "short and stout"})
	tr.Respond("down.com", Response{Err: errors.New("connection refused")})
	tr.Respond("flaky.com", Response{StatusCode: http.StatusOK, Body: "partial", BodyErr: io.ErrUnexpectedEOF})

	t.Run("Default response", func(t *testing.T) {
		res, err := client.Get("http://a.com")
		assert.Assert(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(res.StatusCode, http.StatusOK))
		assert.Check(t, cmp.Equal(string(b), "ok"))
	})

	t.Run("Canned response", func(t *testing.T) {
		res, err := client.Get("http://b.com/pot")
		assert.Assert(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(res.StatusCode, http.StatusTeapot))
		assert.Check(t, cmp.Equal(string(b), "short and stout"))
	})

	t.Run("Round trip failure", func(t *testing.T) {
		_, err := client.Get("http://down.com")
		assert.Check(t, cmp.ErrorContains(err, "connection refused"))
	})

	t.Run("Body failure", func(t *testing.T) {
		res, err := client.Get("http://flaky.com")
		assert.Assert(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		assert.Check(t, cmp.ErrorIs(err, io.ErrUnexpectedEOF))
		assert.Check(t, cmp.Equal(string(b), "partial"))
	})

	t.Run("Every request was recorded", func(t *testing.T) {
		assert.Check(t, cmp.Len(tr.AllRequests(), 4))
	})
}

func newRequest(t *testing.T, method, rawurl, body string, header http.Header) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, rawurl, strings.NewReader(body))
	assert.Assert(t, err)
	if header != nil {
		req.Header = header
	}
	return req
}

func newURL(t *testing.T, rawurl string) url.URL {
	t.Helper()
	u, err := url.Parse(rawurl)
	assert.Assert(t, err)
	return *u
}
