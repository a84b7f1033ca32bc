package unify

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/syncer"
)

// JobLister exposes sync job states; the scheduler satisfies it. The view
// uses it for staleness and reachability in aggregate stats.
type JobLister interface {
	Jobs() []models.SyncJob
}

// View is the stateless merged read model over the snapshot store. Every call
// recomputes from whatever snapshots are current; nothing is cached here.
type View struct {
	store *syncer.Store
	jobs  JobLister
}

// NewView builds a view over the store. jobs may be nil; stats then omit
// reachability counts.
func NewView(store *syncer.Store, jobs JobLister) *View {
	return &View{store: store, jobs: jobs}
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Containers returns one page of the merged, filtered container list. Order
// is deterministic: source, then name, then id.
func (v *View) Containers(filter models.ContainerFilter) models.ContainerPage {
	merged := v.filtered(filter)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Source != merged[j].Source {
			return merged[i].Source < merged[j].Source
		}
		if merged[i].Name != merged[j].Name {
			return merged[i].Name < merged[j].Name
		}
		return merged[i].ID < merged[j].ID
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	total := len(merged)
	start := (page - 1) * size
	items := []models.UnifiedContainer{}
	if start < total {
		end := start + size
		if end > total {
			end = total
		}
		items = merged[start:end]
	}
	return models.ContainerPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: size,
	}
}

// Find resolves one unified id against the current snapshots.
func (v *View) Find(unifiedID string) (models.UnifiedContainer, error) {
	c, ok := v.store.Find(unifiedID)
	if !ok {
		return models.UnifiedContainer{}, &source.NotFoundError{ID: unifiedID}
	}
	return c, nil
}

// Stats aggregates the unified view: per-source and overall totals, running
// counts and the running ratio (rounded to 0.1, zero when the view is empty).
func (v *View) Stats() models.UnifiedStats {
	stats := models.UnifiedStats{GeneratedAt: time.Now()}

	for _, snap := range v.store.All() {
		s := statsFor(&stats, snap.Ref.Kind)
		for _, c := range snap.Containers {
			s.Total++
			if IsRunning(c.Status) {
				s.Running++
			}
		}
		if s.OldestSync.IsZero() || snap.TakenAt.Before(s.OldestSync) {
			s.OldestSync = snap.TakenAt
		}
	}

	if v.jobs != nil {
		for _, job := range v.jobs.Jobs() {
			s := statsFor(&stats, source.Kind(job.SourceKind))
			s.Sources++
			if job.State == models.SyncFailed || job.ConsecutiveFailures > 0 {
				s.Unreachable++
			}
		}
	} else {
		for _, snap := range v.store.All() {
			statsFor(&stats, snap.Ref.Kind).Sources++
		}
	}

	stats.Total = stats.Kubernetes.Total + stats.Docker.Total
	stats.Running = stats.Kubernetes.Running + stats.Docker.Running
	if stats.Total > 0 {
		ratio := float64(stats.Running) / float64(stats.Total) * 100
		stats.PercentageRunning = math.Round(ratio*10) / 10
	}
	return stats
}

func statsFor(u *models.UnifiedStats, kind source.Kind) *models.SourceStats {
	if kind == source.KindDocker {
		return &u.Docker
	}
	return &u.Kubernetes
}

func (v *View) filtered(filter models.ContainerFilter) []models.UnifiedContainer {
	var scopeCluster, scopeHost string
	if filter.Scope != "" {
		switch {
		case strings.HasPrefix(filter.Scope, "cluster:"):
			scopeCluster = strings.TrimPrefix(filter.Scope, "cluster:")
		case strings.HasPrefix(filter.Scope, "host:"):
			scopeHost = strings.TrimPrefix(filter.Scope, "host:")
		}
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	var merged []models.UnifiedContainer
	for _, snap := range v.store.All() {
		if filter.Source != "" && string(snap.Ref.Kind) != filter.Source {
			continue
		}
		if scopeCluster != "" && (snap.Ref.Kind != source.KindKubernetes || snap.Ref.ID != scopeCluster) {
			continue
		}
		if scopeHost != "" && (snap.Ref.Kind != source.KindDocker || snap.Ref.ID != scopeHost) {
			continue
		}
		for _, c := range snap.Containers {
			if filter.Status != "" && !strings.EqualFold(c.Status, filter.Status) {
				continue
			}
			if query != "" &&
				!strings.Contains(strings.ToLower(c.Name), query) &&
				!strings.Contains(strings.ToLower(c.Image), query) {
				continue
			}
			merged = append(merged, c)
		}
	}
	return merged
}
