package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	"github.com/circleci/netmonitor/o11y"
)

type TxManager struct {
	DB *sqlx.DB
	// This is only for testing purposes
	TestQuerier func(Querier) Querier
	// RetryTimeout bounds how long WithTx keeps retrying a busy database.
	RetryTimeout time.Duration
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{DB: db, RetryTimeout: 2 * time.Second}
}

// WithTx runs f in a transaction, retrying the whole transaction while the database is busy or
// the connection was found to be bad. f must be safe to run more than once.
func (s *TxManager) WithTx(ctx context.Context, f func(context.Context, Querier) error) (err error) {
	ctx, span := o11y.StartSpan(ctx, "tx-manager: with-tx")
	defer o11y.End(span, &err)

	attempts := 0
	attempt := func() error {
		attempts++
		err := s.WithTransaction(ctx, f)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrBusy) || errors.Is(err, ErrBadConn):
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = s.RetryTimeout
	err = backoff.Retry(attempt, backoff.WithContext(bo, ctx))
	span.AddRawField("db.attempts", attempts)
	return err
}

// WithTransaction runs f in a single transaction. The transaction is committed only when f
// returns nil, and is rolled back on an error or a panic.
func (s *TxManager) WithTransaction(ctx context.Context, f func(context.Context, Querier) error) (err error) {
	ctx, span := o11y.StartSpan(ctx, "tx-manager: with-transaction")
	defer o11y.End(span, &err)

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		_, err = mapError(err)
		return fmt.Errorf("could not start transaction: %w", err)
	}

	defer func() {
		p := recover()
		switch {
		case p != nil:
			// a panic occurred, rollback and re-panic
			_ = tx.Rollback()
			panic(p)
		case err != nil:
			// the driver rolls back by itself once the context is cancelled
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			if rErr := tx.Rollback(); rErr != nil {
				o11y.AddField(ctx, "rollback_error", rErr)
			}
		case errors.Is(ctx.Err(), context.Canceled):
			// f saw no error but the transaction was still rolled back
			err = ctx.Err()
			return
		default:
			err = tx.Commit()
			if err != nil {
				_, err = mapError(err)
			}
		}
	}()

	var q Querier = mappedTx{tx: tx}
	if s.TestQuerier != nil {
		q = s.TestQuerier(q)
	}
	err = f(ctx, q)

	// Note that the above defer can reassign err
	return err
}
