// Package testcontext provides a context carrying a working o11y provider, so tests get logs.
package testcontext

import (
	"context"

	"github.com/circleci/netmonitor/config/o11y"
)

// ctx is initialised at package load so every test shares one provider.
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	cx, _, err := o11y.Setup(context.Background(), o11y.Config{
		Format:  "text",
		Service: "test-service",
		Version: "dev",
	})
	if err != nil {
		panic(err)
	}
	return cx
}
