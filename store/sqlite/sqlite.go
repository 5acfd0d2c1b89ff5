// Package sqlite is a Store persisted in a SQLite database, so a collector service can be
// restarted without losing the scope it has aggregated so far.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/circleci/netmonitor/db"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS logged_requests (
		url        TEXT PRIMARY KEY,
		call_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS methods (
		url    TEXT NOT NULL REFERENCES logged_requests (url) ON DELETE CASCADE,
		method TEXT NOT NULL,
		UNIQUE (url, method)
	)`,
	`CREATE TABLE IF NOT EXISTS tracebacks (
		url       TEXT NOT NULL REFERENCES logged_requests (url) ON DELETE CASCADE,
		traceback TEXT NOT NULL,
		UNIQUE (url, traceback)
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		url         TEXT NOT NULL REFERENCES logged_requests (url) ON DELETE CASCADE,
		status_code INTEGER NOT NULL,
		content     TEXT NOT NULL,
		UNIQUE (url, status_code, content)
	)`,
	`CREATE TABLE IF NOT EXISTS domains (
		domain TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS summary (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		total_requests INTEGER NOT NULL,
		duration       REAL NOT NULL
	)`,
	`INSERT OR IGNORE INTO summary (id, total_requests, duration) VALUES (1, 0, 0)`,
}

type Store struct {
	txm *db.TxManager
}

var _ store.Store = (*Store)(nil)

// New creates the schema if needed and returns a store over it. Any scope already in the
// database is kept.
func New(ctx context.Context, txm *db.TxManager) (s *Store, err error) {
	ctx, span := db.Span(ctx, "store", "migrate")
	defer o11y.End(span, &err)

	err = txm.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		for _, stmt := range schema {
			if _, err := q.ExecContext(ctx, stmt); ignoreNop(err) != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not create schema: %w", err)
	}
	return &Store{txm: txm}, nil
}

// Log applies every change of the entry in one transaction.
func (s *Store) Log(ctx context.Context, e record.Entry) (err error) {
	ctx, span := db.Span(ctx, "logged_requests", "log")
	defer o11y.End(span, &err)
	span.AddField("url", e.URL)

	domain := e.Domain
	if domain == "" {
		domain = record.Host(e.URL)
	}
	trace := record.Trace(e.Traceback)
	if trace == nil {
		trace = record.Trace{}
	}
	tb, err := json.Marshal(trace)
	if err != nil {
		return err
	}

	return s.txm.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		stmts := []struct {
			query string
			args  []interface{}
		}{
			{`INSERT INTO logged_requests (url, call_count) VALUES (?, 1)
				ON CONFLICT (url) DO UPDATE SET call_count = call_count + 1`, []interface{}{e.URL}},
			{`INSERT OR IGNORE INTO methods (url, method) VALUES (?, ?)`, []interface{}{e.URL, e.Method}},
			{`INSERT OR IGNORE INTO tracebacks (url, traceback) VALUES (?, ?)`, []interface{}{e.URL, string(tb)}},
			{`INSERT OR IGNORE INTO responses (url, status_code, content) VALUES (?, ?, ?)`,
				[]interface{}{e.URL, e.ResponseStatusCode, e.ResponseContent}},
			{`INSERT OR IGNORE INTO domains (domain) VALUES (?)`, []interface{}{domain}},
			{`UPDATE summary SET total_requests = total_requests + 1, duration = duration + ? WHERE id = 1`,
				[]interface{}{e.Duration}},
		}
		for _, st := range stmts {
			if _, err := q.ExecContext(ctx, st.query, st.args...); ignoreNop(err) != nil {
				return err
			}
		}
		return nil
	})
}

type requestRow struct {
	URL   string `db:"url"`
	Count int    `db:"call_count"`
}

type methodRow struct {
	URL    string `db:"url"`
	Method string `db:"method"`
}

type tracebackRow struct {
	URL       string `db:"url"`
	Traceback string `db:"traceback"`
}

type responseRow struct {
	URL        string `db:"url"`
	StatusCode int    `db:"status_code"`
	Content    string `db:"content"`
}

type summaryRow struct {
	TotalRequests int     `db:"total_requests"`
	Duration      float64 `db:"duration"`
}

// Retrieve reads every table in one transaction and rebuilds the snapshot from them.
func (s *Store) Retrieve(ctx context.Context) (snap record.Snapshot, err error) {
	ctx, span := db.Span(ctx, "logged_requests", "retrieve")
	defer o11y.End(span, &err)

	err = s.txm.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		snap = record.NewSnapshot()

		var requests []requestRow
		if err := q.SelectContext(ctx, &requests, `SELECT url, call_count FROM logged_requests`); ignoreNop(err) != nil {
			return err
		}
		for _, r := range requests {
			snap.Records[r.URL] = &record.CallRecord{
				Count:      r.Count,
				Methods:    record.StringSet{},
				Tracebacks: record.TraceSet{},
				Responses:  record.ResponseSet{},
			}
		}

		var methods []methodRow
		if err := q.SelectContext(ctx, &methods, `SELECT url, method FROM methods`); ignoreNop(err) != nil {
			return err
		}
		for _, m := range methods {
			if r, ok := snap.Records[m.URL]; ok {
				r.Methods.Add(m.Method)
			}
		}

		var traces []tracebackRow
		if err := q.SelectContext(ctx, &traces, `SELECT url, traceback FROM tracebacks`); ignoreNop(err) != nil {
			return err
		}
		for _, t := range traces {
			r, ok := snap.Records[t.URL]
			if !ok {
				continue
			}
			var trace record.Trace
			if err := json.Unmarshal([]byte(t.Traceback), &trace); err != nil {
				return fmt.Errorf("traceback for %q: %w", t.URL, err)
			}
			r.Tracebacks.Add(trace)
		}

		var responses []responseRow
		err := q.SelectContext(ctx, &responses, `SELECT url, status_code, content FROM responses`)
		if ignoreNop(err) != nil {
			return err
		}
		for _, resp := range responses {
			if r, ok := snap.Records[resp.URL]; ok {
				r.Responses.Add(record.Response{StatusCode: resp.StatusCode, Content: resp.Content})
			}
		}

		var domains []string
		if err := q.SelectContext(ctx, &domains, `SELECT domain FROM domains`); ignoreNop(err) != nil {
			return err
		}
		for _, d := range domains {
			snap.Summary.Domains.Add(d)
		}

		var sum summaryRow
		err = q.GetContext(ctx, &sum, `SELECT total_requests, duration FROM summary WHERE id = 1`)
		if err != nil {
			return err
		}
		snap.Summary.TotalRequests = sum.TotalRequests
		snap.Summary.Duration = sum.Duration
		return nil
	})
	if err != nil {
		return record.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, span := db.Span(ctx, "logged_requests", "clear")
	defer o11y.End(span, &err)

	return s.txm.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		for _, stmt := range []string{
			`DELETE FROM methods`,
			`DELETE FROM tracebacks`,
			`DELETE FROM responses`,
			`DELETE FROM logged_requests`,
			`DELETE FROM domains`,
			`UPDATE summary SET total_requests = 0, duration = 0 WHERE id = 1`,
		} {
			if _, err := q.ExecContext(ctx, stmt); ignoreNop(err) != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MetricName() string {
	return "store"
}

// Gauges reports the size of the scope, for the collector metrics loop.
func (s *Store) Gauges(ctx context.Context) map[string]float64 {
	var counts struct {
		TotalRequests int `db:"total_requests"`
		URLs          int `db:"urls"`
		Domains       int `db:"domains"`
	}
	err := s.txm.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		return q.GetContext(ctx, &counts, `SELECT
			(SELECT total_requests FROM summary WHERE id = 1) AS total_requests,
			(SELECT count(*) FROM logged_requests) AS urls,
			(SELECT count(*) FROM domains) AS domains`)
	})
	if err != nil {
		o11y.LogError(ctx, "sqlite-store: gauges", err)
		return map[string]float64{}
	}
	return map[string]float64{
		"total_requests": float64(counts.TotalRequests),
		"urls":           float64(counts.URLs),
		"domains":        float64(counts.Domains),
	}
}

// ignoreNop treats statements that changed or returned nothing as successful.
func ignoreNop(err error) error {
	if errors.Is(err, db.ErrNop) {
		return nil
	}
	return err
}
