package httpserver

import (
	"context"
	"net"
	"sync"
)

// trackedListener counts the connections it accepts, and those still open.
type trackedListener struct {
	net.Listener

	mu         sync.RWMutex
	name       string
	accepted   int
	activeConn int
}

func (l *trackedListener) Accept() (net.Conn, error) {
	con, err := l.Listener.Accept()
	if err != nil {
		return con, err
	}
	l.mu.Lock()
	l.accepted++
	l.activeConn++
	l.mu.Unlock()
	return &trackedConnection{Conn: con, l: l}, nil
}

// MetricName returns the name for the metrics the listener will produce.
func (l *trackedListener) MetricName() string {
	return l.name + "-listener"
}

// Gauges returns the connection counts.
func (l *trackedListener) Gauges(_ context.Context) map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return map[string]float64{
		"total_connections":  float64(l.accepted),
		"active_connections": float64(l.activeConn),
	}
}

type trackedConnection struct {
	net.Conn

	once sync.Once
	l    *trackedListener
}

// Close releases the connection from the listener's count, once.
func (c *trackedConnection) Close() error {
	c.once.Do(func() {
		c.l.mu.Lock()
		c.l.activeConn--
		c.l.mu.Unlock()
	})
	return c.Conn.Close()
}
