// Package usage collects current per-entity resource usage across all
// registered sources. One sweep is shared by every streaming subscriber
// through a short-TTL cache, so N subscribers do not multiply backend load.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// Sample is one entity's usage at sweep time, attributed to its source so
// scoped subscriptions can filter. CPU is percent of one core, memory MiB,
// network counters cumulative bytes. Kubernetes entities carry no network
// counters (the metrics API has none), flagged via HasNetwork.
type Sample struct {
	Ref        source.Ref
	Entity     string
	CPU        float64
	MemoryMiB  float64
	RxBytes    float64
	TxBytes    float64
	HasNetwork bool
}

// Sweep is the merged result of polling every provider once.
type Sweep struct {
	TakenAt time.Time
	Samples []Sample
}

// Provider yields current usage for one registered source.
type Provider interface {
	Ref() source.Ref
	Collect(ctx context.Context) ([]Sample, error)
}

// Collector fans a sweep out over all providers and caches the merged result.
type Collector struct {
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	providers map[string]Provider

	// sweepMu serializes backend sweeps: under concurrent cache misses one
	// caller polls the backends, the rest re-check the cache behind it.
	sweepMu sync.Mutex
	cacheMu sync.RWMutex
	cached  *Sweep
}

// NewCollector builds a collector with the given cache TTL.
func NewCollector(ttl time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		ttl:       ttl,
		logger:    logger,
		providers: make(map[string]Provider),
	}
}

// AddProvider registers a source's usage provider, replacing any previous one
// for the same source.
func (c *Collector) AddProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Ref().Key()] = p
}

// RemoveProvider drops a source's provider.
func (c *Collector) RemoveProvider(ref source.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, ref.Key())
}

// Current returns the latest sweep, polling the backends only when the cached
// one has expired. Per-source failures are logged and skipped; a sweep always
// succeeds with whatever samples were collectable.
func (c *Collector) Current(ctx context.Context) *Sweep {
	if sweep := c.fresh(); sweep != nil {
		metrics.UsageCacheHitsTotal.Inc()
		return sweep
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if sweep := c.fresh(); sweep != nil {
		metrics.UsageCacheHitsTotal.Inc()
		return sweep
	}

	metrics.UsageCacheMissesTotal.Inc()
	sweep := c.sweep(ctx)
	c.cacheMu.Lock()
	c.cached = sweep
	c.cacheMu.Unlock()
	return sweep
}

// Invalidate drops the cached sweep; the next Current polls the backends.
func (c *Collector) Invalidate() {
	c.cacheMu.Lock()
	c.cached = nil
	c.cacheMu.Unlock()
}

func (c *Collector) fresh() *Sweep {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if c.cached != nil && time.Since(c.cached.TakenAt) < c.ttl {
		return c.cached
	}
	return nil
}

func (c *Collector) sweep(ctx context.Context) *Sweep {
	providers := c.snapshot()
	sweep := &Sweep{TakenAt: time.Now()}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		p := p
		g.Go(func() error {
			samples, err := p.Collect(gctx)
			if err != nil {
				metrics.ConnectorErrorsTotal.WithLabelValues(string(p.Ref().Kind)).Inc()
				c.logger.Warn("usage collection failed",
					"source", p.Ref().Key(), "error", err)
				return nil
			}
			mu.Lock()
			sweep.Samples = append(sweep.Samples, samples...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return sweep
}

func (c *Collector) snapshot() []Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	return out
}
