// Package syncer runs the per-source synchronization loops and owns the
// in-memory snapshot store the unified view reads from.
package syncer

import (
	"sort"
	"sync"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// Snapshot is one source's normalized inventory at a point in time. Snapshots
// are immutable after publication: patching produces a new value, readers keep
// whatever pointer they loaded.
type Snapshot struct {
	Ref        source.Ref
	Containers []models.UnifiedContainer
	TakenAt    time.Time
}

// Age reports how long ago the snapshot was taken.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.TakenAt)
}

// Store maps each registered source to its latest snapshot. Writers swap whole
// values under the lock; a failed cycle never touches the previous snapshot,
// so readers see stale data rather than none.
type Store struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

func NewStore() *Store {
	return &Store{snaps: make(map[string]*Snapshot)}
}

// Set publishes a snapshot, replacing the previous one for the same source.
func (s *Store) Set(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Ref.Key()] = snap
}

// Get returns the latest snapshot for a source, if one has been published.
func (s *Store) Get(ref source.Ref) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[ref.Key()]
	return snap, ok
}

// All returns every published snapshot ordered by source key, so merged views
// are deterministic.
func (s *Store) All() []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.snaps))
	for k := range s.snaps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.snaps[k])
	}
	return out
}

// Remove drops a source's snapshot, e.g. when the source is deregistered.
func (s *Store) Remove(ref source.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, ref.Key())
}

// Len reports how many sources currently have a snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

// UpdateEntity patches one container into a source's snapshot copy-on-write:
// the slice is duplicated, the entry replaced (or appended if new) and the
// whole snapshot swapped. TakenAt is preserved; a targeted patch does not make
// the rest of the snapshot any fresher.
func (s *Store) UpdateEntity(ref source.Ref, c models.UnifiedContainer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.snaps[ref.Key()]
	if !ok {
		return
	}
	next := &Snapshot{
		Ref:        old.Ref,
		Containers: make([]models.UnifiedContainer, 0, len(old.Containers)+1),
		TakenAt:    old.TakenAt,
	}
	replaced := false
	for _, existing := range old.Containers {
		if existing.ID == c.ID {
			next.Containers = append(next.Containers, c)
			replaced = true
			continue
		}
		next.Containers = append(next.Containers, existing)
	}
	if !replaced {
		next.Containers = append(next.Containers, c)
	}
	s.snaps[ref.Key()] = next
}

// RemoveEntity drops one container from a source's snapshot, for entities that
// disappeared between the last cycle and a targeted re-read.
func (s *Store) RemoveEntity(ref source.Ref, unifiedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.snaps[ref.Key()]
	if !ok {
		return
	}
	next := &Snapshot{
		Ref:        old.Ref,
		Containers: make([]models.UnifiedContainer, 0, len(old.Containers)),
		TakenAt:    old.TakenAt,
	}
	for _, existing := range old.Containers {
		if existing.ID == unifiedID {
			continue
		}
		next.Containers = append(next.Containers, existing)
	}
	s.snaps[ref.Key()] = next
}

// Find scans all snapshots for a unified id.
func (s *Store) Find(unifiedID string) (models.UnifiedContainer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.snaps {
		for _, c := range snap.Containers {
			if c.ID == unifiedID {
				return c, true
			}
		}
	}
	return models.UnifiedContainer{}, false
}
