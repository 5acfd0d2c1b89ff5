// Package memory is the in-process Store. It is the default backend of the monitor and one of the
// backends of the collector service.
package memory

import (
	"context"
	"sync"

	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store"
)

type Store struct {
	mu   sync.RWMutex
	snap record.Snapshot
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{snap: record.NewSnapshot()}
}

func (s *Store) Log(_ context.Context, e record.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Add(e)
	return nil
}

// Retrieve returns a deep copy, so callers may hold on to it while logging continues.
func (s *Store) Retrieve(_ context.Context) (record.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone(), nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = record.NewSnapshot()
	return nil
}

func (s *Store) MetricName() string {
	return "store"
}

// Gauges reports the size of the scope, for the collector metrics loop.
func (s *Store) Gauges(_ context.Context) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]float64{
		"total_requests": float64(s.snap.Summary.TotalRequests),
		"urls":           float64(len(s.snap.Records)),
		"domains":        float64(len(s.snap.Summary.Domains)),
	}
}
