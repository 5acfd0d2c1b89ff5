package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type HealthCheck struct {
	Name string
	DB   *sqlx.DB
}

// Check pings the database and runs a trivial query through the pool.
func (h *HealthCheck) Check(ctx context.Context) error {
	if err := h.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite health check failed on ping: %w", err)
	}
	var version string
	if err := h.DB.GetContext(ctx, &version, `SELECT sqlite_version()`); err != nil {
		return fmt.Errorf("sqlite health check failed on select: %w", err)
	}
	return nil
}

func (h *HealthCheck) MetricName() string {
	return h.Name
}

func (h *HealthCheck) Gauges(_ context.Context) map[string]float64 {
	stats := h.DB.Stats()
	return map[string]float64{
		"in_use":        float64(stats.InUse),
		"idle":          float64(stats.Idle),
		"wait_count":    float64(stats.WaitCount),
		"wait_duration": float64(stats.WaitDuration / time.Millisecond),
	}
}
