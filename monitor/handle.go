package monitor

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrInterception is returned when a client's transport could not be wrapped or restored.
var ErrInterception = errors.New("transport interception failed")

// Handle owns the interception of one client. It remembers the transport the client had before
// Install so Restore can put exactly that value back.
type Handle struct {
	client *http.Client
	wrap   func(next http.RoundTripper) http.RoundTripper

	mu        sync.Mutex
	installed bool
	original  http.RoundTripper
	wrapper   http.RoundTripper
}

// NewHandle returns a handle that will replace the client's transport with wrap(original).
func NewHandle(client *http.Client, wrap func(next http.RoundTripper) http.RoundTripper) *Handle {
	return &Handle{client: client, wrap: wrap}
}

// Install wraps the client's current transport. A nil transport stays nil underneath, so the
// client keeps following http.DefaultTransport.
func (h *Handle) Install() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client == nil {
		return fmt.Errorf("%w: nil client", ErrInterception)
	}
	if h.installed {
		return fmt.Errorf("%w: already installed", ErrInterception)
	}
	if _, ok := h.client.Transport.(*transport); ok {
		return fmt.Errorf("%w: client is already monitored", ErrInterception)
	}

	h.original = h.client.Transport
	h.wrapper = h.wrap(h.original)
	h.client.Transport = h.wrapper
	h.installed = true
	return nil
}

// Restore puts the original transport back. Restoring a handle that is not installed does nothing.
func (h *Handle) Restore() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.installed {
		return nil
	}
	h.installed = false
	if h.client.Transport != h.wrapper {
		return fmt.Errorf("%w: transport was replaced after install, leaving it in place", ErrInterception)
	}
	h.client.Transport = h.original
	h.original, h.wrapper = nil, nil
	return nil
}

func (h *Handle) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}
