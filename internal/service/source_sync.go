package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/docker/docker/errdefs"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/syncer"
	"github.com/fleetglass/fleetglass-backend/internal/unify"
)

// clusterReader is the slice of the Kubernetes connector a sync cycle needs.
// *k8s.Client satisfies it.
type clusterReader interface {
	Pods(ctx context.Context, namespace string) ([]models.Pod, error)
	Namespaces(ctx context.Context) ([]models.Namespace, error)
	Events(ctx context.Context, namespace string) ([]models.Event, error)
}

// kubernetesSyncer reads one cluster per cycle: pods become the snapshot,
// namespaces and events go to the repository as side inventories.
type kubernetesSyncer struct {
	ref        source.Ref
	client     clusterReader
	repo       repository.Store
	staleAfter int
	logger     *slog.Logger
}

func newKubernetesSyncer(ref source.Ref, client clusterReader, repo repository.Store, staleAfter int, logger *slog.Logger) *kubernetesSyncer {
	return &kubernetesSyncer{
		ref:        ref,
		client:     client,
		repo:       repo,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Sync lists all pods and normalizes them into the snapshot. Namespace and
// event persistence ride along best-effort: their failure degrades the
// inventories, not the snapshot.
func (s *kubernetesSyncer) Sync(ctx context.Context) (*syncer.Snapshot, error) {
	pods, err := s.client.Pods(ctx, "")
	if err != nil {
		return nil, source.Unreachable(s.ref, err)
	}

	containers := make([]models.UnifiedContainer, 0, len(pods))
	for _, pod := range pods {
		containers = append(containers, unify.FromPod(pod))
	}

	if err := s.syncNamespaces(ctx); err != nil {
		s.logger.Warn("namespace inventory sync failed",
			"cluster_id", s.ref.ID, "error", err)
	}
	if err := s.syncEvents(ctx); err != nil {
		s.logger.Warn("event sync failed",
			"cluster_id", s.ref.ID, "error", err)
	}

	return &syncer.Snapshot{
		Ref:        s.ref,
		Containers: containers,
		TakenAt:    time.Now().UTC(),
	}, nil
}

// Entity is unsupported: nothing dispatches actions against pods, so the
// targeted resync path never needs a per-pod read.
func (s *kubernetesSyncer) Entity(ctx context.Context, nativeID string) (models.UnifiedContainer, error) {
	return models.UnifiedContainer{}, &source.UnsupportedForSourceError{
		Op:   "targeted resync",
		Kind: source.KindKubernetes,
	}
}

// syncNamespaces upserts every namespace seen this cycle and bumps the miss
// counter on the rest, so vanished namespaces go stale instead of vanishing
// from the inventory.
func (s *kubernetesSyncer) syncNamespaces(ctx context.Context) error {
	namespaces, err := s.client.Namespaces(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	seen := make([]string, 0, len(namespaces))
	for i := range namespaces {
		ns := namespaces[i]
		ns.ClusterID = s.ref.ID
		ns.LastSeenAt = now
		if ns.FirstSeenAt.IsZero() {
			ns.FirstSeenAt = now
		}
		if err := s.repo.UpsertNamespace(ctx, &ns); err != nil {
			return err
		}
		seen = append(seen, ns.Name)
	}
	return s.repo.MarkMissingNamespaces(ctx, s.ref.ID, seen, s.staleAfter)
}

func (s *kubernetesSyncer) syncEvents(ctx context.Context) error {
	events, err := s.client.Events(ctx, "")
	if err != nil {
		return err
	}
	for i := range events {
		ev := events[i]
		ev.ClusterID = s.ref.ID
		if err := s.repo.UpsertEvent(ctx, &ev); err != nil {
			return err
		}
	}
	return nil
}

// engineReader is the slice of the Docker connector a sync cycle needs.
// *docker.Client satisfies it.
type engineReader interface {
	Containers(ctx context.Context) ([]models.DockerContainer, error)
	Container(ctx context.Context, containerID string) (models.DockerContainer, error)
}

// dockerSyncer reads one engine per cycle.
type dockerSyncer struct {
	ref    source.Ref
	client engineReader
	logger *slog.Logger
}

func newDockerSyncer(ref source.Ref, client engineReader, logger *slog.Logger) *dockerSyncer {
	return &dockerSyncer{ref: ref, client: client, logger: logger}
}

func (s *dockerSyncer) Sync(ctx context.Context) (*syncer.Snapshot, error) {
	list, err := s.client.Containers(ctx)
	if err != nil {
		return nil, source.Unreachable(s.ref, err)
	}
	containers := make([]models.UnifiedContainer, 0, len(list))
	for _, c := range list {
		containers = append(containers, unify.FromDockerContainer(c))
	}
	return &syncer.Snapshot{
		Ref:        s.ref,
		Containers: containers,
		TakenAt:    time.Now().UTC(),
	}, nil
}

// Entity re-inspects one container for snapshot patching after an action. A
// container the engine no longer knows reports not-found so the caller drops
// it from the snapshot.
func (s *dockerSyncer) Entity(ctx context.Context, nativeID string) (models.UnifiedContainer, error) {
	c, err := s.client.Container(ctx, nativeID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return models.UnifiedContainer{}, &source.NotFoundError{ID: nativeID}
		}
		return models.UnifiedContainer{}, source.Unreachable(s.ref, err)
	}
	return unify.FromDockerContainer(c), nil
}
