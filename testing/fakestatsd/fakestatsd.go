// Package fakestatsd runs a UDP listener that decodes the dogstatsd line protocol, so tests can
// check what a statsd client sent.
package fakestatsd

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

type Server struct {
	conn *net.UDPConn

	mu      sync.RWMutex
	metrics []Metric
}

// New starts a server on a random local port. It is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	assert.Assert(t, err)

	conn, err := net.ListenUDP("udp", addr)
	assert.Assert(t, err)

	s := &Server{conn: conn}
	go s.listen()
	t.Cleanup(func() {
		_ = s.conn.Close()
	})
	return s
}

func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

// Metric is one decoded datagram line. Value keeps the type suffix, e.g. "1|c".
type Metric struct {
	Name  string
	Value string
	Tags  []string
}

// HasTag reports whether the metric carries the exact tag.
func (m Metric) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *Server) Metrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// Named returns the received metrics with the given name, namespace included.
func (s *Server) Named(name string) []Metric {
	var found []Metric
	for _, m := range s.Metrics() {
		if m.Name == name {
			found = append(found, m)
		}
	}
	return found
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

func (s *Server) listen() {
	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}
		for _, line := range bytes.Split(buf[:n], []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if m, ok := parse(string(line)); ok {
				s.record(m)
			}
		}
	}
}

func (s *Server) record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

// parse decodes "name:value|type|@rate|#tag1,tag2". Service checks and events are skipped.
func parse(raw string) (Metric, bool) {
	name, rest, ok := strings.Cut(raw, ":")
	if !ok || strings.HasPrefix(name, "_") {
		return Metric{}, false
	}
	m := Metric{Name: name}
	var parts []string
	for _, p := range strings.Split(rest, "|") {
		if tags, ok := strings.CutPrefix(p, "#"); ok {
			m.Tags = strings.Split(tags, ",")
			continue
		}
		if strings.HasPrefix(p, "@") || p == "" {
			continue
		}
		parts = append(parts, p)
	}
	m.Value = strings.Join(parts, "|")
	return m, true
}
