package db

import (
	"context"
	"database/sql"
	"errors"
	"reflect"

	"github.com/jmoiron/sqlx"
)

// mappedTx is the Querier handed to transaction funcs. Driver errors come back as this
// package's errors, and empty results as ErrNop.
type mappedTx struct {
	tx *sqlx.Tx
}

func (m mappedTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := m.tx.ExecContext(ctx, query, args...)
	return res, mapExecErrors(err, res)
}

func (m mappedTx) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := m.tx.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNop
	}
	_, err = mapError(err)
	return err
}

func (m mappedTx) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := m.tx.SelectContext(ctx, dest, query, args...); err != nil {
		_, err = mapError(err)
		return err
	}
	// sqlx has already checked dest points at a slice
	if reflect.Indirect(reflect.ValueOf(dest)).Len() == 0 {
		return ErrNop
	}
	return nil
}
