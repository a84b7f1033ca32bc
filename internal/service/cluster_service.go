// Package service wires connectors, the scheduler, the usage collector and
// the repository into the operations the API layer exposes: source registry
// CRUD, per-source sync pipelines, unified log access and retention cleanup.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fleetglass/fleetglass-backend/internal/config"
	"github.com/fleetglass/fleetglass-backend/internal/k8s"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/audit"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/logger"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/validate"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/syncer"
	"github.com/fleetglass/fleetglass-backend/internal/usage"
)

// registerTimeout bounds the connectivity probe when a source is added.
const registerTimeout = 5 * time.Second

// unreachableAfter is the consecutive-failure count at which a degraded
// source is reported unreachable.
const unreachableAfter = 3

// statusWriteTimeout bounds the health write performed after each cycle.
const statusWriteTimeout = 5 * time.Second

// ClusterService manages registered Kubernetes clusters and their sync
// pipelines.
type ClusterService interface {
	List(ctx context.Context) ([]*models.Cluster, error)
	Get(ctx context.Context, id string) (*models.Cluster, error)
	// Add validates connectivity first: an unreachable cluster is rejected,
	// not registered.
	Add(ctx context.Context, name, kubeconfigPath, kubeconfig string) (*models.Cluster, error)
	Remove(ctx context.Context, id string) error
	// Namespaces returns the persisted inventory, stale rows included.
	Namespaces(ctx context.Context, id string) ([]*models.Namespace, error)
	// Pods reads live pods from the cluster, optionally narrowed to one
	// namespace.
	Pods(ctx context.Context, id, namespace string) ([]models.Pod, error)
	Events(ctx context.Context, id string, f repository.EventFilter) ([]*models.Event, error)
	// Client returns the live connector for a registered cluster.
	Client(id string) (*k8s.Client, error)
	// LoadFromRepo restores clients and sync loops for persisted clusters.
	// Probe failures mark the cluster unreachable but still register it, so
	// the loop retries on its own.
	LoadFromRepo(ctx context.Context) error
	// RecordCycle persists source health after a sync cycle; wired as the
	// scheduler's cycle hook.
	RecordCycle(ref source.Ref, cycleErr error)
}

// K8sClientFactory builds a connector for a cluster row. Tests inject fakes
// here; nil means the real client-go constructors.
type K8sClientFactory func(kubeconfigPath string, kubeconfig []byte) (*k8s.Client, error)

type clusterService struct {
	repo      repository.Store
	scheduler *syncer.Scheduler
	collector *usage.Collector
	cfg       *config.Config
	logger    *slog.Logger
	factory   K8sClientFactory

	mu      sync.RWMutex
	clients map[string]*k8s.Client
}

func NewClusterService(repo repository.Store, sched *syncer.Scheduler, collector *usage.Collector, cfg *config.Config, log *slog.Logger) ClusterService {
	return newClusterService(repo, sched, collector, cfg, log, nil)
}

// NewClusterServiceWithFactory is for tests: Add and LoadFromRepo build
// clients through the factory instead of dialing real API servers.
func NewClusterServiceWithFactory(repo repository.Store, sched *syncer.Scheduler, collector *usage.Collector, cfg *config.Config, log *slog.Logger, factory K8sClientFactory) ClusterService {
	return newClusterService(repo, sched, collector, cfg, log, factory)
}

func newClusterService(repo repository.Store, sched *syncer.Scheduler, collector *usage.Collector, cfg *config.Config, log *slog.Logger, factory K8sClientFactory) ClusterService {
	if log == nil {
		log = slog.Default()
	}
	return &clusterService{
		repo:      repo,
		scheduler: sched,
		collector: collector,
		cfg:       cfg,
		logger:    log,
		factory:   factory,
		clients:   make(map[string]*k8s.Client),
	}
}

func (s *clusterService) List(ctx context.Context) ([]*models.Cluster, error) {
	return s.repo.ListClusters(ctx)
}

func (s *clusterService) Get(ctx context.Context, id string) (*models.Cluster, error) {
	return s.repo.GetCluster(ctx, id)
}

func (s *clusterService) Add(ctx context.Context, name, kubeconfigPath, kubeconfig string) (*models.Cluster, error) {
	if !validate.SourceName(name) {
		return nil, fmt.Errorf("%w: invalid source name %q", source.ErrInvalidInput, name)
	}
	if kubeconfigPath == "" && kubeconfig == "" {
		return nil, fmt.Errorf("%w: either kubeconfig_path or kubeconfig is required", source.ErrInvalidInput)
	}
	if kubeconfigPath != "" {
		if _, err := os.Stat(kubeconfigPath); err != nil {
			return nil, fmt.Errorf("%w: kubeconfig not found: %v", source.ErrInvalidInput, err)
		}
	}
	if err := checkSourceCapacity(ctx, s.repo, s.cfg.MaxSources); err != nil {
		return nil, err
	}

	client, err := s.buildClient(kubeconfigPath, []byte(kubeconfig))
	if err != nil {
		return nil, fmt.Errorf("build cluster client: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		return nil, source.Unreachable(source.Ref{Kind: source.KindKubernetes, ID: name}, err)
	}
	version, _ := client.Version(probeCtx)

	c := &models.Cluster{
		Name:           name,
		KubeconfigPath: kubeconfigPath,
		Kubeconfig:     kubeconfig,
		Version:        version,
		Status:         models.SourceStatusHealthy,
		CreatedAt:      time.Now().UTC(),
	}
	if client.Config != nil {
		c.APIEndpoint = client.Config.Host
	}
	if err := s.repo.CreateCluster(ctx, c); err != nil {
		return nil, fmt.Errorf("persist cluster: %w", err)
	}
	client.ClusterID = c.ID

	if err := s.register(c.ID, client); err != nil {
		// Roll back the row so the registry and the scheduler agree.
		_ = s.repo.DeleteCluster(ctx, c.ID)
		return nil, err
	}

	audit.LogRegistry(logger.FromContext(ctx), "cluster.add", string(source.KindKubernetes), c.ID, "success", name)
	s.logger.Info("cluster registered", "cluster_id", c.ID, "name", name, "version", version)
	return c, nil
}

func (s *clusterService) Remove(ctx context.Context, id string) error {
	if _, err := s.repo.GetCluster(ctx, id); err != nil {
		return err
	}

	ref := source.Ref{Kind: source.KindKubernetes, ID: id}
	s.scheduler.RemoveSource(ref)
	s.collector.RemoveProvider(ref)

	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()

	if err := s.repo.DeleteCluster(ctx, id); err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	audit.LogRegistry(logger.FromContext(ctx), "cluster.remove", string(source.KindKubernetes), id, "success", "")
	s.logger.Info("cluster removed", "cluster_id", id)
	return nil
}

func (s *clusterService) Namespaces(ctx context.Context, id string) ([]*models.Namespace, error) {
	if _, err := s.repo.GetCluster(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListNamespaces(ctx, id)
}

func (s *clusterService) Pods(ctx context.Context, id, namespace string) ([]models.Pod, error) {
	if !validate.Namespace(namespace) {
		return nil, fmt.Errorf("%w: invalid namespace %q", source.ErrInvalidInput, namespace)
	}
	client, err := s.Client(id)
	if err != nil {
		return nil, err
	}
	pods, err := client.Pods(ctx, namespace)
	if err != nil {
		return nil, source.Unreachable(source.Ref{Kind: source.KindKubernetes, ID: id}, err)
	}
	return pods, nil
}

func (s *clusterService) Events(ctx context.Context, id string, f repository.EventFilter) ([]*models.Event, error) {
	if _, err := s.repo.GetCluster(ctx, id); err != nil {
		return nil, err
	}
	f.ClusterID = id
	return s.repo.ListEvents(ctx, f)
}

func (s *clusterService) Client(id string) (*k8s.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return nil, &source.NotFoundError{ID: id}
	}
	return client, nil
}

func (s *clusterService) LoadFromRepo(ctx context.Context) error {
	clusters, err := s.repo.ListClusters(ctx)
	if err != nil {
		return fmt.Errorf("list clusters: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range clusters {
		c := c
		g.Go(func() error {
			client, err := s.buildClient(c.KubeconfigPath, []byte(c.Kubeconfig))
			if err != nil {
				s.logger.Warn("cluster client unavailable", "cluster_id", c.ID, "error", err)
				_ = s.repo.SetClusterStatus(gctx, c.ID, models.SourceStatusUnreachable, err.Error(), c.LastSyncAt)
				return nil
			}
			client.ClusterID = c.ID

			probeCtx, cancel := context.WithTimeout(gctx, registerTimeout)
			defer cancel()
			if err := client.Ping(probeCtx); err != nil {
				// Registered anyway: the sync loop keeps retrying.
				s.logger.Warn("cluster probe failed", "cluster_id", c.ID, "error", err)
				_ = s.repo.SetClusterStatus(gctx, c.ID, models.SourceStatusUnreachable, err.Error(), c.LastSyncAt)
			}
			return s.register(c.ID, client)
		})
	}
	return g.Wait()
}

func (s *clusterService) RecordCycle(ref source.Ref, cycleErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	job, _ := s.scheduler.Job(ref)
	status := models.SourceStatusHealthy
	lastErr := ""
	if cycleErr != nil {
		lastErr = cycleErr.Error()
		status = models.SourceStatusDegraded
		// A source that never completed a cycle is unreachable, not
		// degraded; the same goes past the consecutive-failure threshold.
		if job.ConsecutiveFailures >= unreachableAfter || job.LastSuccessAt.IsZero() {
			status = models.SourceStatusUnreachable
		}
	}
	if err := s.repo.SetClusterStatus(ctx, ref.ID, status, lastErr, job.LastSuccessAt); err != nil {
		s.logger.Warn("persist cluster health", "cluster_id", ref.ID, "error", err)
	}
}

// register stores the client and starts the sync loop plus usage provider.
func (s *clusterService) register(id string, client *k8s.Client) error {
	s.mu.Lock()
	s.clients[id] = client
	s.mu.Unlock()

	ref := source.Ref{Kind: source.KindKubernetes, ID: id}
	sync := newKubernetesSyncer(ref, client, s.repo, s.cfg.SyncStaleAfter, s.logger)
	if err := s.scheduler.AddSource(ref, sync); err != nil {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		return err
	}
	s.collector.AddProvider(usage.NewKubernetesProvider(ref, client))
	return nil
}

// checkSourceCapacity enforces the registry-wide source cap shared by
// clusters and hosts. max <= 0 disables the cap.
func checkSourceCapacity(ctx context.Context, repo repository.Store, max int) error {
	if max <= 0 {
		return nil
	}
	clusters, err := repo.ListClusters(ctx)
	if err != nil {
		return fmt.Errorf("count sources: %w", err)
	}
	hosts, err := repo.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("count sources: %w", err)
	}
	if len(clusters)+len(hosts) >= max {
		return fmt.Errorf("%w: source limit of %d reached", source.ErrInvalidInput, max)
	}
	return nil
}

func (s *clusterService) buildClient(kubeconfigPath string, kubeconfig []byte) (*k8s.Client, error) {
	var client *k8s.Client
	var err error
	switch {
	case s.factory != nil:
		client, err = s.factory(kubeconfigPath, kubeconfig)
	case len(kubeconfig) > 0:
		client, err = k8s.NewClientFromBytes(kubeconfig)
	default:
		client, err = k8s.NewClient(kubeconfigPath)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.K8sTimeout() > 0 {
		client.SetTimeout(s.cfg.K8sTimeout())
	}
	if s.cfg.K8sRateLimitPerSec > 0 && s.cfg.K8sRateLimitBurst > 0 {
		client.SetLimiter(rate.NewLimiter(rate.Limit(s.cfg.K8sRateLimitPerSec), s.cfg.K8sRateLimitBurst))
	}
	return client, nil
}
