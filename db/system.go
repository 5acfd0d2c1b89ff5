package db

import (
	"context"

	"github.com/circleci/netmonitor/system"
)

// Load opens the database and registers its connection metrics and its closing with sys.
func Load(ctx context.Context, dbName string, cfg Config, sys *system.System) (*TxManager, error) {
	db, err := New(ctx, dbName, cfg)
	if err != nil {
		return nil, err
	}

	check := &HealthCheck{Name: dbName + "-db", DB: db}
	if err := check.Check(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	sys.AddMetrics(check)
	sys.AddCleanup(func(ctx context.Context) error {
		return db.Close()
	})
	return NewTxManager(db), nil
}
