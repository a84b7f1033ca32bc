package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/repository"
)

type pruneStore struct {
	repository.Store

	mu      sync.Mutex
	cutoffs []time.Time
	pruned  int64
	err     error
}

func (s *pruneStore) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, olderThan)
	return s.pruned, s.err
}

func (s *pruneStore) calls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.cutoffs...)
}

func waitForCalls(t *testing.T, store *pruneStore, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.calls()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("prune calls = %d, want >= %d", len(store.calls()), n)
}

func TestCleanupPrunesImmediately(t *testing.T) {
	store := &pruneStore{pruned: 4}
	c := NewCleanup(store, time.Hour, time.Hour, discardLogger())
	c.Start(context.Background())
	defer c.Stop()

	waitForCalls(t, store, 1)
	cutoff := store.calls()[0]
	want := time.Now().UTC().Add(-time.Hour)
	if d := cutoff.Sub(want); d < -time.Minute || d > time.Minute {
		t.Fatalf("cutoff = %v, want about %v", cutoff, want)
	}
}

func TestCleanupTicksAndSurvivesErrors(t *testing.T) {
	store := &pruneStore{err: errors.New("database is locked")}
	c := NewCleanup(store, 20*time.Millisecond, time.Hour, discardLogger())
	c.Start(context.Background())
	defer c.Stop()

	// Failed prunes must not stop the loop.
	waitForCalls(t, store, 3)
}

func TestCleanupDisabledWithoutRetention(t *testing.T) {
	store := &pruneStore{}
	c := NewCleanup(store, 10*time.Millisecond, 0, discardLogger())
	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	if got := len(store.calls()); got != 0 {
		t.Fatalf("prune calls = %d, want 0 when retention is disabled", got)
	}
	c.Stop()
}

func TestCleanupStopIdempotent(t *testing.T) {
	store := &pruneStore{}
	c := NewCleanup(store, time.Hour, time.Hour, discardLogger())

	c.Stop() // never started

	c.Start(context.Background())
	waitForCalls(t, store, 1)
	c.Stop()
	c.Stop()

	// Restart after Stop runs a fresh loop.
	c.Start(context.Background())
	waitForCalls(t, store, 2)
	c.Stop()
}
