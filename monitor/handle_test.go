package monitor_test

import (
	"net/http"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/netmonitor/monitor"
	"github.com/circleci/netmonitor/testing/httprecorder"
)

type wrapped struct {
	next http.RoundTripper
}

func (w *wrapped) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.next.RoundTrip(req)
}

func wrap(next http.RoundTripper) http.RoundTripper {
	return &wrapped{next: next}
}

func TestHandle(t *testing.T) {
	stub := httprecorder.NewTransport()
	client := &http.Client{Transport: stub}
	h := monitor.NewHandle(client, wrap)

	t.Run("Restore before install does nothing", func(t *testing.T) {
		assert.Check(t, h.Restore())
		assert.Check(t, client.Transport == stub)
	})

	t.Run("Install", func(t *testing.T) {
		assert.Assert(t, h.Install())
		assert.Check(t, h.Installed())
		w, ok := client.Transport.(*wrapped)
		assert.Assert(t, ok)
		assert.Check(t, w.next == stub)
	})

	t.Run("Install twice fails", func(t *testing.T) {
		assert.Check(t, cmp.ErrorIs(h.Install(), monitor.ErrInterception))
	})

	t.Run("Restore", func(t *testing.T) {
		assert.Assert(t, h.Restore())
		assert.Check(t, !h.Installed())
		assert.Check(t, client.Transport == stub)
	})

	t.Run("Restore again does nothing", func(t *testing.T) {
		assert.Check(t, h.Restore())
		assert.Check(t, client.Transport == stub)
	})

	t.Run("Install after restore", func(t *testing.T) {
		assert.Assert(t, h.Install())
		assert.Assert(t, h.Restore())
		assert.Check(t, client.Transport == stub)
	})
}

func TestHandle_NilTransport(t *testing.T) {
	client := &http.Client{}
	h := monitor.NewHandle(client, wrap)

	assert.Assert(t, h.Install())
	w, ok := client.Transport.(*wrapped)
	assert.Assert(t, ok)
	assert.Check(t, w.next == nil)

	assert.Assert(t, h.Restore())
	assert.Check(t, client.Transport == nil)
}

func TestHandle_NilClient(t *testing.T) {
	h := monitor.NewHandle(nil, wrap)
	assert.Check(t, cmp.ErrorIs(h.Install(), monitor.ErrInterception))
	assert.Check(t, h.Restore())
}
