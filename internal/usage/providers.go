package usage

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fleetglass/fleetglass-backend/internal/docker"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/syncer"
)

// PodMetricsClient is the slice of the Kubernetes connector the provider
// needs. *k8s.Client satisfies it.
type PodMetricsClient interface {
	PodUsage(ctx context.Context) (cpu, memory []models.EntityValue, err error)
}

// KubernetesProvider reads pod usage from one cluster's metrics API.
type KubernetesProvider struct {
	ref    source.Ref
	client PodMetricsClient
}

func NewKubernetesProvider(ref source.Ref, client PodMetricsClient) *KubernetesProvider {
	return &KubernetesProvider{ref: ref, client: client}
}

func (p *KubernetesProvider) Ref() source.Ref { return p.ref }

// Collect merges the cpu and memory series by pod name. Pods present in only
// one series still yield a sample; the metrics API already drops zero values.
func (p *KubernetesProvider) Collect(ctx context.Context) ([]Sample, error) {
	cpu, memory, err := p.client.PodUsage(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Sample)
	sample := func(name string) *Sample {
		s, ok := byName[name]
		if !ok {
			s = &Sample{Ref: p.ref, Entity: name}
			byName[name] = s
		}
		return s
	}
	for _, ev := range cpu {
		sample(ev.Name).CPU = ev.Value
	}
	for _, ev := range memory {
		sample(ev.Name).MemoryMiB = ev.Value
	}
	out := make([]Sample, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	return out, nil
}

// StatsClient is the slice of the Docker connector the provider needs.
// *docker.Client satisfies it.
type StatsClient interface {
	Stats(ctx context.Context, containerID string) (docker.ContainerUsage, error)
}

// statsConcurrency bounds parallel one-shot stats reads against one engine.
const statsConcurrency = 8

// DockerProvider polls per-container stats for one host. The container set
// comes from the host's current snapshot, so a usage sweep costs one stats
// call per running container and no list/inspect round trips.
type DockerProvider struct {
	ref    source.Ref
	client StatsClient
	store  *syncer.Store
}

func NewDockerProvider(ref source.Ref, client StatsClient, store *syncer.Store) *DockerProvider {
	return &DockerProvider{ref: ref, client: client, store: store}
}

func (p *DockerProvider) Ref() source.Ref { return p.ref }

func (p *DockerProvider) Collect(ctx context.Context) ([]Sample, error) {
	snap, ok := p.store.Get(p.ref)
	if !ok {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		out     []Sample
		lastErr error
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsConcurrency)
	for _, c := range snap.Containers {
		if c.Status != models.ContainerRunning {
			continue
		}
		name := c.Name
		nativeID := strings.TrimPrefix(c.ID, models.UnifiedPrefixDocker)
		g.Go(func() error {
			u, err := p.client.Stats(gctx, nativeID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Likely gone since the last cycle; skip unless the whole
				// sweep failed.
				failed++
				lastErr = err
				return nil
			}
			out = append(out, Sample{
				Ref:        p.ref,
				Entity:     name,
				CPU:        u.CPUPercent,
				MemoryMiB:  u.MemoryMiB,
				RxBytes:    u.RxBytes,
				TxBytes:    u.TxBytes,
				HasNetwork: true,
			})
			return nil
		})
	}
	_ = g.Wait()

	if len(out) == 0 && failed > 0 {
		return nil, lastErr
	}
	return out, nil
}
