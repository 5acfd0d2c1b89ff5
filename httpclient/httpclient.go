// Package httpclient is the traced JSON client the remote store uses to reach a collector.
// Calls retry connection failures and 5XX responses with backoff until Config.Timeout runs out.
// POST and PATCH are only retried when the connection could not be made, since the server may
// already have acted on an attempt that failed later.
//
// The client builds its own transport, so a monitor instrumenting http.DefaultClient, or a
// mocking library replacing http.DefaultTransport, never sees collector traffic.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/netmonitor/o11y"
)

const JSON = "application/json; charset=utf-8"

// ErrNoContent is returned for a 204 response. It is a warning, so callers that expect an empty
// reply can check for it with IsNoContent.
var ErrNoContent = o11y.NewWarning("no content")

type Config struct {
	// Name identifies the client in spans and metrics.
	Name string
	// BaseURL is prepended to every request route.
	BaseURL string
	// AcceptType sets the Accept header when not empty.
	AcceptType string
	// Timeout bounds a whole call, retries included. Zero retries for ever.
	Timeout time.Duration
}

type Client struct {
	name       string
	baseURL    string
	acceptType string
	maxElapsed time.Duration
	http       *http.Client
}

func New(cfg Config) *Client {
	t := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if dt, ok := http.DefaultTransport.(*http.Transport); ok {
		t = dt.Clone()
	}
	return &Client{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		acceptType: cfg.AcceptType,
		maxElapsed: cfg.Timeout,
		http:       &http.Client{Transport: t},
	}
}

type Decoder func(r io.Reader) error

type Request struct {
	Method string
	// Route is the low cardinality form of the path, used to name spans.
	Route string
	// Body is sent as JSON when set.
	Body interface{}
	// Decoder reads a 2XX response body when set.
	Decoder Decoder
	// Timeout bounds each attempt. Defaults to 5 seconds.
	Timeout time.Duration
	// NoPropagation stops the trace header being sent.
	NoPropagation bool

	url string
}

// NewRequest formats route with routeParams for the url while keeping route itself for tracing.
func NewRequest(method, route string, timeout time.Duration, routeParams ...interface{}) Request {
	return Request{
		Method:  method,
		Route:   route,
		Timeout: timeout,
		url:     fmt.Sprintf(route, routeParams...),
	}
}

// Call sends r, retrying as described in the package doc. A non 2XX response is returned as an
// *HTTPError and a body that cannot be decoded as a *DecodeError.
func (c *Client) Call(ctx context.Context, r Request) (err error) {
	if r.url == "" {
		r.url = r.Route
	}
	u, err := url.Parse(c.baseURL + r.url)
	if err != nil {
		return err
	}

	var body []byte
	if r.Body != nil {
		b := &bytes.Buffer{}
		if err := json.NewEncoder(b).Encode(r.Body); err != nil {
			return fmt.Errorf("could not json encode request: %w", err)
		}
		body = b.Bytes()
	}

	attempts := 0
	attempt := func() error {
		attempts++
		return c.attempt(ctx, r, u.String(), body, attempts)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	err = backoff.Retry(attempt, backoff.WithContext(bo, ctx))
	return finalAttempt(err)
}

func (c *Client) attempt(ctx context.Context, r Request, u string, body []byte, n int) (err error) {
	ctx, span := o11y.StartSpan(ctx, fmt.Sprintf("httpclient: %s %s", c.name, r.Route))
	defer o11y.End(span, &err)
	start := time.Now()

	timeout := r.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, u, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", JSON)
	}
	if c.acceptType != "" {
		req.Header.Set("Accept", c.acceptType)
	}
	if !r.NoPropagation {
		o11y.InjectTrace(ctx, req.Header)
	}

	span.AddRawField("meta.type", "http_client")
	span.AddRawField("http.client_name", c.name)
	span.AddRawField("http.route", r.Route)
	span.AddRawField("http.method", r.Method)
	span.AddRawField("http.url", u)
	span.AddRawField("http.attempt", n)

	res, err := c.http.Do(req)
	if err != nil {
		// url.Error repeats the method and url
		ue := &url.Error{}
		if errors.As(err, &ue) {
			err = ue.Err
		}
		err = fmt.Errorf("call: %s %s failed with: %w after %d attempt(s)", r.Method, r.Route, err, n)
		if !idempotent(r.Method) && !dialFailed(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	defer func() {
		// drain for keep alive
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	span.AddRawField("http.status_code", res.StatusCode)
	if m := o11y.FromContext(ctx).MetricsProvider(); m != nil {
		_ = m.TimeInMilliseconds("httpclient", float64(time.Since(start).Microseconds())/1000, []string{
			"http.client_name:" + c.name,
			"http.route:" + r.Route,
			"http.method:" + r.Method,
			"http.status_code:" + strconv.Itoa(res.StatusCode),
			"http.retry:" + strconv.FormatBool(n > 1),
		}, 1)
	}

	if err := statusError(r, res.StatusCode, n); err != nil {
		return err
	}
	if r.Decoder == nil {
		return nil
	}
	if err := r.Decoder(res.Body); err != nil {
		return backoff.Permanent(&DecodeError{method: r.Method, route: r.Route, code: res.StatusCode, attempts: n, err: err})
	}
	return nil
}

// statusError maps the response status to the error that decides whether to retry.
func statusError(r Request, code, attempts int) error {
	e := &HTTPError{method: r.Method, route: r.Route, code: code, attempts: attempts}
	switch {
	case code >= 500:
		if !idempotent(r.Method) {
			return backoff.Permanent(e)
		}
		return e
	case code >= 300:
		return backoff.Permanent(e)
	case code == http.StatusNoContent:
		return backoff.Permanent(ErrNoContent)
	}
	return nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch:
		return false
	}
	return true
}

// dialFailed reports an attempt that never reached the server.
func dialFailed(err error) bool {
	oe := &net.OpError{}
	return errors.As(err, &oe) && oe.Op == "dial"
}

func NewJSONDecoder(v interface{}) Decoder {
	return func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(v); err != nil {
			return fmt.Errorf("failed to unmarshal: %w", err)
		}
		return nil
	}
}

// HTTPError is a non 2XX response.
type HTTPError struct {
	method   string
	route    string
	code     int
	attempts int
	final    bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("the response from %s %s was %d (%s) (%d attempts)",
		e.method, e.route, e.code, http.StatusText(e.code), e.attempts)
}

func (e *HTTPError) Code() int {
	return e.code
}

// Is reports attempts that will be retried as warnings, so only the final failure is traced as
// an error.
func (e *HTTPError) Is(target error) bool {
	return o11y.IsWarningNoUnwrap(target) && !e.final
}

func finalAttempt(err error) error {
	e := &HTTPError{}
	if errors.As(err, &e) {
		e.final = true
	}
	return err
}

// DecodeError is a 2XX response whose body the Decoder rejected.
type DecodeError struct {
	method   string
	route    string
	code     int
	attempts int
	err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("call: %s %s decoding failed with: %v after %d attempt(s)",
		e.method, e.route, e.err, e.attempts)
}

func (e *DecodeError) Code() int {
	return e.code
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

// HasStatusCode reports whether err is an HTTPError with one of codes.
func HasStatusCode(err error, codes ...int) bool {
	e := &HTTPError{}
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.code == c {
			return true
		}
	}
	return false
}

func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}
