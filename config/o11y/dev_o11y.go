package o11y

import (
	"context"
	"sync"

	"github.com/circleci/netmonitor/o11y"
)

// DevInit makes Setup share a single provider between every caller, closing it when the
// last caller closes. It is only expected to be used in tests.
func DevInit() {
	coordinator = &closeCoord{}
}

var coordinator *closeCoord

type closeCoord struct {
	mu sync.Mutex

	refs      int
	provider  o11y.Provider
	realClose func(context.Context)
}

func (c *closeCoord) setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		ctx, cleanup, err := setup(ctx, o)
		if err != nil {
			return ctx, nil, err
		}
		c.realClose = cleanup
		c.provider = o11y.FromContext(ctx)
		c.refs++
		return ctx, c.close, nil
	}

	c.refs++
	return o11y.WithProvider(ctx, c.provider), c.close, nil
}

func (c *closeCoord) close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs--
	if c.refs == 0 {
		c.realClose(ctx)
	}
}
