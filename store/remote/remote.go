// Package remote is the Store that keeps no data itself. Every operation is one request to a
// collector service: POST to log, GET to retrieve and DELETE to clear.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/circleci/netmonitor/httpclient"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store"
)

type Config struct {
	// BaseURL is the collector address, eg. http://localhost:9001
	BaseURL string
	// Timeout bounds each operation, including any retries. Defaults to 5 seconds.
	Timeout time.Duration
}

type Store struct {
	client  *httpclient.Client
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) *Store {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Store{
		timeout: cfg.Timeout,
		client: httpclient.New(httpclient.Config{
			Name:       "collector",
			BaseURL:    cfg.BaseURL,
			AcceptType: httpclient.JSON,
			Timeout:    cfg.Timeout,
		}),
	}
}

func (s *Store) Log(ctx context.Context, e record.Entry) (err error) {
	ctx, span := o11y.StartSpan(ctx, "remote: log")
	defer o11y.End(span, &err)
	span.AddField("url", e.URL)

	req := httpclient.NewRequest(http.MethodPost, "/", s.timeout)
	req.Body = e
	return s.call(ctx, "log", req)
}

func (s *Store) Retrieve(ctx context.Context) (snap record.Snapshot, err error) {
	ctx, span := o11y.StartSpan(ctx, "remote: retrieve")
	defer o11y.End(span, &err)

	req := httpclient.NewRequest(http.MethodGet, "/", s.timeout)
	req.Decoder = httpclient.NewJSONDecoder(&snap)
	if err := s.call(ctx, "retrieve", req); err != nil {
		return record.Snapshot{}, err
	}
	span.AddField("total_requests", snap.Summary.TotalRequests)
	return snap, nil
}

func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "remote: clear")
	defer o11y.End(span, &err)

	return s.call(ctx, "clear", httpclient.NewRequest(http.MethodDelete, "/", s.timeout))
}

// call maps client failures onto the store error kinds.
func (s *Store) call(ctx context.Context, op string, req httpclient.Request) error {
	err := s.client.Call(ctx, req)
	if err == nil || httpclient.IsNoContent(err) {
		return nil
	}

	httpErr := &httpclient.HTTPError{}
	if errors.As(err, &httpErr) {
		return &store.ProtocolError{Op: op, StatusCode: httpErr.Code(), Err: err}
	}
	decodeErr := &httpclient.DecodeError{}
	if errors.As(err, &decodeErr) {
		return &store.ProtocolError{Op: op, StatusCode: decodeErr.Code(), Err: err}
	}
	return fmt.Errorf("collector %s: %w: %w", op, store.ErrCollectorUnreachable, err)
}
