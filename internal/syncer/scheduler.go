package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/tracing"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// A Syncer reads one source end to end. Implementations live in the service
// layer, one per source kind, and return already-normalized snapshots.
type Syncer interface {
	// Sync performs one full cycle against the source and returns a fresh
	// snapshot. The context carries the per-cycle deadline.
	Sync(ctx context.Context) (*Snapshot, error)

	// Entity re-reads a single entity by its source-native id for targeted
	// patching after an action. A disappeared entity returns an error
	// satisfying errors.Is(err, source.ErrNotFound).
	Entity(ctx context.Context, nativeID string) (models.UnifiedContainer, error)
}

// Scheduler owns one sync loop per registered source. Loops tick
// independently; a failure in one never blocks or empties another. At most one
// cycle runs per source at any instant — on-demand triggers attach to the
// in-flight cycle instead of starting a second one.
type Scheduler struct {
	store        *Store
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *slog.Logger

	// cycleHook, when set, observes every finished cycle (err nil on
	// success). The registry uses it to keep source health current.
	cycleHook func(ref source.Ref, err error)

	mu    sync.Mutex
	loops map[string]*sourceLoop

	runCtx    context.Context
	runCancel context.CancelFunc
	startOnce sync.Once
}

// sourceLoop is the per-source goroutine state. job and the done channels are
// guarded by mu; kick is buffered so repeated triggers coalesce into one
// pending cycle.
type sourceLoop struct {
	ref    source.Ref
	syncer Syncer

	kick chan struct{}

	mu          sync.Mutex
	job         models.SyncJob
	cycleDone   chan struct{} // non-nil while a cycle is running
	pendingDone chan struct{} // non-nil while a kicked cycle waits to start

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a scheduler over the given store. interval is the
// steady-state tick per source, cycleTimeout bounds each cycle.
func NewScheduler(store *Store, interval, cycleTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        store,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger,
		loops:        make(map[string]*sourceLoop),
	}
}

// SetCycleHook registers a callback invoked after every cycle with the cycle
// error (nil on success). Must be set before sources are added.
func (s *Scheduler) SetCycleHook(fn func(ref source.Ref, err error)) {
	s.cycleHook = fn
}

// Start establishes the run context. Sources added before Start run against a
// background context until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.runCtx, s.runCancel = context.WithCancel(ctx)
		s.mu.Unlock()
	})
}

// Stop cancels every loop and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.runCancel != nil {
		s.runCancel()
	}
	loops := make([]*sourceLoop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.Unlock()
	for _, l := range loops {
		l.cancel()
		<-l.done
	}
}

// AddSource registers a source and starts its loop with an immediate first
// cycle. Duplicate registration is an error.
func (s *Scheduler) AddSource(ref source.Ref, sy Syncer) error {
	s.mu.Lock()
	if _, exists := s.loops[ref.Key()]; exists {
		s.mu.Unlock()
		return fmt.Errorf("source %s already registered", ref.Key())
	}
	base := s.runCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	l := &sourceLoop{
		ref:    ref,
		syncer: sy,
		kick:   make(chan struct{}, 1),
		job: models.SyncJob{
			SourceKind: string(ref.Kind),
			SourceID:   ref.ID,
			State:      models.SyncIdle,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.loops[ref.Key()] = l
	s.mu.Unlock()

	metrics.SyncSourcesRegistered.Inc()
	go s.run(ctx, l)
	return nil
}

// RemoveSource cancels a source's loop, waits for it to exit and drops its
// snapshot. Removing an unknown source is a no-op.
func (s *Scheduler) RemoveSource(ref source.Ref) {
	s.mu.Lock()
	l, ok := s.loops[ref.Key()]
	if ok {
		delete(s.loops, ref.Key())
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	l.cancel()
	<-l.done
	s.store.Remove(ref)
	metrics.SyncSourcesRegistered.Dec()
}

// TriggerSync requests an immediate cycle and returns a channel that closes
// when that cycle completes. A cycle already in flight absorbs the request:
// the returned channel tracks the running cycle, never a second concurrent
// one.
func (s *Scheduler) TriggerSync(ref source.Ref) (<-chan struct{}, error) {
	l, ok := s.loop(ref)
	if !ok {
		return nil, &source.NotFoundError{ID: ref.Key()}
	}
	return l.trigger(), nil
}

// WaitSync triggers a cycle and blocks until it completes, up to wait. Past
// the deadline it returns the current job along with ErrSyncInProgress so the
// caller can surface "still running" instead of hanging.
func (s *Scheduler) WaitSync(ctx context.Context, ref source.Ref, wait time.Duration) (models.SyncJob, error) {
	ch, err := s.TriggerSync(ref)
	if err != nil {
		return models.SyncJob{}, err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ch:
		job, _ := s.Job(ref)
		return job, nil
	case <-timer.C:
		job, _ := s.Job(ref)
		return job, source.ErrSyncInProgress
	case <-ctx.Done():
		job, _ := s.Job(ref)
		return job, ctx.Err()
	}
}

// TriggerAll fans a bounded wait out over every registered source and returns
// the job states afterwards. Sources still running past the wait are reported
// as such, not treated as failures.
func (s *Scheduler) TriggerAll(ctx context.Context, wait time.Duration) []models.SyncJob {
	refs := s.refs()
	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			if _, err := s.WaitSync(gctx, ref, wait); err != nil &&
				!errors.Is(err, source.ErrSyncInProgress) && !errors.Is(err, context.Canceled) {
				s.logger.Warn("trigger all: source wait failed",
					"source", ref.Key(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return s.Jobs()
}

// ResyncEntity re-reads exactly one entity from its connector and patches the
// source's snapshot copy-on-write. An entity that disappeared since the last
// cycle is dropped from the snapshot.
func (s *Scheduler) ResyncEntity(ctx context.Context, ref source.Ref, nativeID string) error {
	l, ok := s.loop(ref)
	if !ok {
		return &source.NotFoundError{ID: ref.Key()}
	}
	c, err := l.syncer.Entity(ctx, nativeID)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			s.store.RemoveEntity(ref, unifiedID(ref, nativeID))
			return nil
		}
		return err
	}
	s.store.UpdateEntity(ref, c)
	return nil
}

// Job returns a copy of one source's job state.
func (s *Scheduler) Job(ref source.Ref) (models.SyncJob, bool) {
	l, ok := s.loop(ref)
	if !ok {
		return models.SyncJob{}, false
	}
	return l.jobCopy(), true
}

// Jobs returns every source's job state, ordered by source key.
func (s *Scheduler) Jobs() []models.SyncJob {
	s.mu.Lock()
	keys := make([]string, 0, len(s.loops))
	byKey := make(map[string]*sourceLoop, len(s.loops))
	for k, l := range s.loops {
		keys = append(keys, k)
		byKey[k] = l
	}
	s.mu.Unlock()
	sort.Strings(keys)
	jobs := make([]models.SyncJob, 0, len(keys))
	for _, k := range keys {
		jobs = append(jobs, byKey[k].jobCopy())
	}
	return jobs
}

func (s *Scheduler) loop(ref source.Ref) (*sourceLoop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[ref.Key()]
	return l, ok
}

func (s *Scheduler) refs() []source.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]source.Ref, 0, len(s.loops))
	for _, l := range s.loops {
		refs = append(refs, l.ref)
	}
	return refs
}

// run is the per-source loop: one immediate cycle, then a steady ticker.
// On-demand kicks short-circuit the tick wait.
func (s *Scheduler) run(ctx context.Context, l *sourceLoop) {
	defer close(l.done)
	defer l.settlePending()
	s.runCycle(ctx, l)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, l)
		case <-l.kick:
			s.runCycle(ctx, l)
		}
	}
}

// runCycle executes exactly one cycle for the loop and settles every waiter
// attached to it. The done channel closes only after the snapshot (on
// success) and the job state are visible.
func (s *Scheduler) runCycle(ctx context.Context, l *sourceLoop) {
	l.mu.Lock()
	done := l.pendingDone
	l.pendingDone = nil
	if done == nil {
		done = make(chan struct{})
	}
	l.cycleDone = done
	l.job.State = models.SyncRunning
	l.job.StartedAt = time.Now()
	l.mu.Unlock()

	// A kick queued while this cycle was being scheduled is satisfied by it.
	select {
	case <-l.kick:
	default:
	}

	cctx, span := tracing.StartSpan(ctx, "sync.cycle", trace.WithAttributes(
		attribute.String("source.kind", string(l.ref.Kind)),
		attribute.String("source.id", l.ref.ID),
	))
	cctx, cancel := context.WithTimeout(cctx, s.cycleTimeout)
	started := time.Now()
	snap, err := l.syncer.Sync(cctx)
	cancel()
	elapsed := time.Since(started)

	l.mu.Lock()
	l.cycleDone = nil
	if err != nil {
		l.job.State = models.SyncFailed
		l.job.LastError = err.Error()
		l.job.ConsecutiveFailures++
	} else {
		s.store.Set(snap)
		l.job.State = models.SyncIdle
		l.job.LastSuccessAt = time.Now()
		l.job.LastError = ""
		l.job.Cycles++
		l.job.ConsecutiveFailures = 0
	}
	failures := l.job.ConsecutiveFailures
	l.mu.Unlock()
	span.End()

	// Health persists before waiters are released: a caller who waited on
	// this cycle reads current status, not the previous cycle's.
	if s.cycleHook != nil {
		s.cycleHook(l.ref, err)
	}
	close(done)

	kind := string(l.ref.Kind)
	metrics.SyncCycleDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues(kind, "error").Inc()
		s.logger.Warn("sync cycle failed",
			"source", l.ref.Key(),
			"duration", elapsed.Round(time.Millisecond).String(),
			"consecutive_failures", failures,
			"error", err)
	} else {
		metrics.SyncCyclesTotal.WithLabelValues(kind, "success").Inc()
		s.logger.Debug("sync cycle completed",
			"source", l.ref.Key(),
			"duration", elapsed.Round(time.Millisecond).String(),
			"containers", len(snap.Containers))
	}
}

// trigger returns the channel tracking the cycle that will satisfy this
// request: the in-flight one if running, otherwise a freshly kicked one.
func (l *sourceLoop) trigger() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cycleDone != nil {
		return l.cycleDone
	}
	if l.pendingDone == nil {
		l.pendingDone = make(chan struct{})
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
	return l.pendingDone
}

func (l *sourceLoop) jobCopy() models.SyncJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.job
}

// settlePending releases waiters attached to a kicked cycle that will never
// run because the loop is exiting.
func (l *sourceLoop) settlePending() {
	l.mu.Lock()
	if l.pendingDone != nil {
		close(l.pendingDone)
		l.pendingDone = nil
	}
	l.mu.Unlock()
}

// unifiedID mirrors the id scheme (prefix + native id) for snapshot patching.
func unifiedID(ref source.Ref, nativeID string) string {
	if ref.Kind == source.KindDocker {
		return models.UnifiedPrefixDocker + nativeID
	}
	return models.UnifiedPrefixK8s + nativeID
}
