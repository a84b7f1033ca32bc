package stream

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/usage"
)

// CollectorSource is the slice of the usage collector the broker needs.
type CollectorSource interface {
	Current(ctx context.Context) *usage.Sweep
}

// Options tune the sampling loops. Zero fields fall back to defaults.
type Options struct {
	Period          time.Duration // tick interval per subscriber
	Window          int           // ring capacity
	TopN            int           // entities kept per metric series
	ExcludePrefixes []string      // entity-name prefixes dropped from frames
}

const (
	defaultPeriod = 5 * time.Second
	defaultWindow = 60
	defaultTopN   = 5
)

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = defaultPeriod
	}
	if o.Window <= 0 {
		o.Window = defaultWindow
	}
	if o.TopN <= 0 {
		o.TopN = defaultTopN
	}
	return o
}

// Filter narrows one subscription. Container is a case-insensitive substring
// match on entity names; Scope restricts to one cluster:<id> or host:<id>.
type Filter struct {
	Container string
	Scope     string
}

func (f Filter) matches(s usage.Sample) bool {
	if f.Container != "" &&
		!strings.Contains(strings.ToLower(s.Entity), strings.ToLower(f.Container)) {
		return false
	}
	if f.Scope != "" {
		switch {
		case strings.HasPrefix(f.Scope, "cluster:"):
			if s.Ref.Kind != source.KindKubernetes || s.Ref.ID != strings.TrimPrefix(f.Scope, "cluster:") {
				return false
			}
		case strings.HasPrefix(f.Scope, "host:"):
			if s.Ref.Kind != source.KindDocker || s.Ref.ID != strings.TrimPrefix(f.Scope, "host:") {
				return false
			}
		}
	}
	return true
}

// Broker owns the sampling loops. Each subscriber gets its own goroutine and
// ring; a slow consumer loses frames, it never slows the loop or its peers.
type Broker struct {
	collector CollectorSource
	opts      Options
	logger    *slog.Logger

	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	closed    bool
	startOnce sync.Once
}

// Subscriber is one active metrics subscription.
type Subscriber struct {
	id     string
	filter Filter
	broker *Broker

	frames chan models.MetricFrame

	ringMu sync.Mutex
	ring   *Ring

	dropped atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker builds a broker sampling from the given collector.
func NewBroker(collector CollectorSource, opts Options, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		collector: collector,
		opts:      opts.withDefaults(),
		logger:    logger,
		subs:      make(map[*Subscriber]struct{}),
	}
}

// Start establishes the run context subscribers bind to.
func (b *Broker) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.runCtx, b.runCancel = context.WithCancel(ctx)
		b.mu.Unlock()
	})
}

// Close shuts the broker down: no new subscriptions, all loops cancelled and
// waited for.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	if b.runCancel != nil {
		b.runCancel()
	}
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Subscribe registers a subscription and starts its sampling loop. The first
// frame is produced immediately, then one per period.
func (b *Broker) Subscribe(filter Filter) (*Subscriber, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, context.Canceled
	}
	base := b.runCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s := &Subscriber{
		id:     uuid.NewString(),
		filter: filter,
		broker: b,
		frames: make(chan models.MetricFrame, 1),
		ring:   NewRing(b.opts.Window),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	metrics.StreamSubscribersActive.Inc()
	go b.run(ctx, s)
	return s, nil
}

func (b *Broker) run(ctx context.Context, s *Subscriber) {
	defer close(s.done)
	b.tick(ctx, s)
	ticker := time.NewTicker(b.opts.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx, s)
		}
	}
}

func (b *Broker) tick(ctx context.Context, s *Subscriber) {
	sweep := b.collector.Current(ctx)
	if sweep == nil {
		return
	}
	frame := b.buildFrame(sweep, s.filter)

	s.ringMu.Lock()
	s.ring.Push(frame)
	s.ringMu.Unlock()
	metrics.StreamFramesTotal.Inc()

	select {
	case s.frames <- frame:
	default:
		// Transport not ready: drop for this subscriber only, never queue.
		s.dropped.Add(1)
		metrics.StreamFramesDroppedTotal.Inc()
	}
}

// buildFrame applies exclusion, subscription filtering and top-N ranking to
// one sweep. Zero-valued samples are skipped per series, so an idle entity
// does not crowd out a busy one.
func (b *Broker) buildFrame(sweep *usage.Sweep, filter Filter) models.MetricFrame {
	frame := models.MetricFrame{Timestamp: time.Now().UTC()}
	var cpu, mem, rx, tx []models.EntityValue

	for _, sample := range sweep.Samples {
		if b.excluded(sample.Entity) || !filter.matches(sample) {
			continue
		}
		if sample.CPU != 0 {
			cpu = append(cpu, models.EntityValue{Name: sample.Entity, Value: sample.CPU})
		}
		if sample.MemoryMiB != 0 {
			mem = append(mem, models.EntityValue{Name: sample.Entity, Value: sample.MemoryMiB})
		}
		if sample.HasNetwork {
			if sample.RxBytes != 0 {
				rx = append(rx, models.EntityValue{Name: sample.Entity, Value: sample.RxBytes})
			}
			if sample.TxBytes != 0 {
				tx = append(tx, models.EntityValue{Name: sample.Entity, Value: sample.TxBytes})
			}
		}
	}

	frame.CPU = topN(cpu, b.opts.TopN)
	frame.Memory = topN(mem, b.opts.TopN)
	frame.NetworkRx = topN(rx, b.opts.TopN)
	frame.NetworkTx = topN(tx, b.opts.TopN)
	return frame
}

func (b *Broker) excluded(entity string) bool {
	for _, prefix := range b.opts.ExcludePrefixes {
		if prefix != "" && strings.HasPrefix(entity, prefix) {
			return true
		}
	}
	return false
}

// topN ranks by value descending (name ascending on ties, so frames are
// deterministic) and truncates.
func topN(series []models.EntityValue, n int) []models.EntityValue {
	sort.Slice(series, func(i, j int) bool {
		if series[i].Value != series[j].Value {
			return series[i].Value > series[j].Value
		}
		return series[i].Name < series[j].Name
	})
	if len(series) > n {
		series = series[:n]
	}
	return series
}

// remove drops the subscriber from the broker's set.
func (b *Broker) remove(s *Subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// ID is the subscription's unique id, used in logs.
func (s *Subscriber) ID() string { return s.id }

// Frames is the transport channel the WebSocket writer consumes.
func (s *Subscriber) Frames() <-chan models.MetricFrame { return s.frames }

// Done is closed when the sampling loop stops, whether the subscriber or the
// broker initiated it. After Done no more frames arrive.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Window returns the retained rolling window, oldest frame first.
func (s *Subscriber) Window() []models.MetricFrame {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	return s.ring.Frames()
}

// Dropped reports how many frames this subscriber lost to a busy transport.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Close cancels the sampling loop and releases the subscription. Safe to call
// more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.broker.remove(s)
		metrics.StreamSubscribersActive.Dec()
	})
}
