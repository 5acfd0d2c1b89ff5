package o11y

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"

	"github.com/circleci/netmonitor/config/secret"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/o11y/honeycomb"
	"github.com/circleci/netmonitor/testing/fakestatsd"
)

func TestO11Y_SecretRedacted(t *testing.T) {
	buf := bytes.Buffer{}
	provider := honeycomb.New(honeycomb.Config{
		Writer: &buf,
	})
	ctx := context.Background()
	ctx, span := provider.StartSpan(ctx, "secret test")
	span.AddField("secret", secret.String("super-secret"))
	span.End()
	provider.Close(ctx)
	assert.Check(t, !strings.Contains(buf.String(), "super-secret"), buf.String())
	assert.Check(t, cmp.Contains(buf.String(), "REDACTED"))
}

func TestSetup_DoesNotError(t *testing.T) {
	ctx, cleanup, err := Setup(context.Background(), Config{
		Statsd:           "127.0.0.1:8125",
		HoneycombEnabled: false,
		HoneycombDataset: "does-not-exist",
		HoneycombKey:     "1234567890",
		Format:           "color",
		Version:          "1.2.3",
		Service:          "netmonitor-collector",
		StatsNamespace:   "netmonitor",
		Mode:             "test",
		Debug:            true,
	})
	assert.Assert(t, err)
	assert.Check(t, o11y.FromContext(ctx).MetricsProvider() != nil)
	cleanup(ctx)
}

func TestSetup_SendsStatsd(t *testing.T) {
	s := fakestatsd.New(t)
	ctx, cleanup, err := Setup(context.Background(), Config{
		Statsd:                  s.Addr(),
		StatsdTelemetryDisabled: true,
		Format:                  "none",
		Version:                 "1.2.3",
		Service:                 "netmonitor-collector",
		StatsNamespace:          "netmonitor.",
	})
	assert.Assert(t, err)

	err = o11y.FromContext(ctx).MetricsProvider().Count("calls", 2, []string{"host:example.com"}, 1)
	assert.Check(t, err)
	// closing flushes the client buffer
	cleanup(ctx)

	poll.WaitOn(t, func(t poll.LogT) poll.Result {
		if len(s.Named("netmonitor.calls")) == 0 {
			return poll.Continue("no metrics received")
		}
		return poll.Success()
	}, poll.WithTimeout(5*time.Second))

	m := s.Named("netmonitor.calls")[0]
	assert.Check(t, cmp.Equal(m.Value, "2|c"))
	assert.Check(t, m.HasTag("service:netmonitor-collector"))
	assert.Check(t, m.HasTag("version:1.2.3"))
	assert.Check(t, m.HasTag("host:example.com"))
}

func TestSetup_RequiresKeyWhenSending(t *testing.T) {
	_, _, err := Setup(context.Background(), Config{
		HoneycombEnabled: true,
		Format:           "none",
	})
	assert.Check(t, cmp.ErrorContains(err, "honeycomb_key"))
}

func TestDevInit_SharesProvider(t *testing.T) {
	DevInit()
	t.Cleanup(func() { coordinator = nil })

	cfg := Config{Format: "none", Service: "netmonitor"}
	ctx1, close1, err := Setup(context.Background(), cfg)
	assert.Assert(t, err)
	ctx2, close2, err := Setup(context.Background(), cfg)
	assert.Assert(t, err)

	assert.Check(t, o11y.FromContext(ctx1) == o11y.FromContext(ctx2))
	assert.Check(t, cmp.Equal(coordinator.refs, 2))
	close1(ctx1)
	close2(ctx2)
	assert.Check(t, cmp.Equal(coordinator.refs, 0))
}
