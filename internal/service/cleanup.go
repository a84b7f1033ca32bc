package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
)

// Cleanup is the event retention loop: every interval it deletes events last
// seen before the retention window. Zero retention disables it.
type Cleanup struct {
	repo      repository.Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewCleanup(repo repository.Store, interval, retention time.Duration, logger *slog.Logger) *Cleanup {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Cleanup{
		repo:      repo,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start launches the loop with one immediate prune. No-op when retention is
// disabled or the loop already runs.
func (c *Cleanup) Start(ctx context.Context) {
	if c.retention <= 0 {
		c.logger.Info("event retention disabled")
		return
	}
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (c *Cleanup) Stop() {
	if c.done == nil {
		return
	}
	c.cancel()
	<-c.done
	c.done = nil
}

func (c *Cleanup) run(ctx context.Context) {
	defer close(c.done)
	c.prune(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.prune(ctx)
		}
	}
}

func (c *Cleanup) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-c.retention)
	pruned, err := c.repo.PruneEvents(ctx, cutoff)
	if err != nil {
		c.logger.Warn("event retention prune failed", "error", err)
		return
	}
	if pruned > 0 {
		metrics.EventsPrunedTotal.Add(float64(pruned))
		c.logger.Info("events pruned", "count", pruned, "older_than", cutoff.Format(time.RFC3339))
	}
}
