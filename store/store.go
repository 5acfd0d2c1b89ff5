// Package store defines the aggregation backend contract. A Store owns one aggregation scope;
// the monitor and the collector service only ever talk to this interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/circleci/netmonitor/record"
)

type Store interface {
	// Log folds one accepted call into the scope. The record and summary change together or not at all.
	Log(ctx context.Context, e record.Entry) error
	// Retrieve returns a consistent snapshot of the scope. It never mutates the scope.
	Retrieve(ctx context.Context) (record.Snapshot, error)
	// Clear resets the scope to empty.
	Clear(ctx context.Context) error
}

// ErrCollectorUnreachable is returned when a round trip to the collector service could not complete.
var ErrCollectorUnreachable = errors.New("collector unreachable")

// ProtocolError is returned when the collector service answered with a non 2XX status or a body
// that could not be decoded.
type ProtocolError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collector %s: status %d (%s): %v",
			e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("collector %s: status %d (%s)", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// HasStatusCode reports whether err is a ProtocolError carrying any of codes.
func HasStatusCode(err error, codes ...int) bool {
	e := &ProtocolError{}
	if errors.As(err, &e) {
		for _, code := range codes {
			if e.StatusCode == code {
				return true
			}
		}
	}
	return false
}
