package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Load SQLite Driver

	"github.com/circleci/netmonitor/o11y"
)

const driverName = "sqlite"

type Config struct {
	// Path is the database file. ":memory:" keeps the database in process.
	Path string
	// BusyTimeout is how long a statement waits on a locked database before failing.
	BusyTimeout time.Duration
}

// New opens the database and checks it can be reached.
//
// SQLite allows a single writer, so the pool is limited to one connection. This also keeps an
// in memory database alive and shared for as long as the pool is open.
func New(ctx context.Context, dbName string, options Config) (db *sqlx.DB, err error) {
	ctx, span := o11y.StartSpan(ctx, "config: connect to database")
	defer o11y.End(span, &err)

	if options.Path == "" {
		options.Path = ":memory:"
	}
	if options.BusyTimeout == 0 {
		options.BusyTimeout = 5 * time.Second
	}

	span.AddField("database", dbName)
	span.AddField("path", options.Path)

	db, err = sqlx.Open(driverName, dsn(options))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not reach %s database: %w", dbName, err)
	}
	return db, nil
}

func dsn(options Config) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", options.BusyTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	if options.Path != ":memory:" {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}
	return "file:" + options.Path + "?" + params.Encode()
}
