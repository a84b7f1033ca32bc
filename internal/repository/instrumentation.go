package repository

import (
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
)

// instrument wraps a database operation with a latency observation.
func instrument(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.DBQueryDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}
