package db

import (
	"context"
	"database/sql"
)

// Querier is the subset of *sqlx.Tx the stores use inside a transaction.
type Querier interface {
	// ExecContext executes the query with placeholder parameters that match the args.
	// Use this if you do not care about the data the query generates.
	// A statement that affects no rows returns ErrNop.
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// GetContext expects placeholder parameters in the query and will bind args to them.
	// A single row result will be mapped to dest which must be a pointer to a struct or a scannable value.
	// In the case of no result the error returned will be ErrNop.
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// SelectContext expects placeholder parameters in the query and will bind args to them.
	// Each resultant row will be scanned into dest, which must be a slice.
	// An empty result returns ErrNop and leaves dest empty.
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
