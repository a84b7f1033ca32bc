package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fleetglass/fleetglass-backend/internal/actions"
	"github.com/fleetglass/fleetglass-backend/internal/config"
	"github.com/fleetglass/fleetglass-backend/internal/docker"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/audit"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/logger"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/validate"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/syncer"
	"github.com/fleetglass/fleetglass-backend/internal/usage"
)

// HostService manages registered Docker hosts and their sync pipelines. It is
// also the dispatcher's actor resolver: lifecycle actions reach engines
// through the same clients sync uses.
type HostService interface {
	List(ctx context.Context) ([]*models.DockerHost, error)
	Get(ctx context.Context, id string) (*models.DockerHost, error)
	// Add validates connectivity first: an unreachable engine is rejected,
	// not registered.
	Add(ctx context.Context, name, endpoint string) (*models.DockerHost, error)
	Remove(ctx context.Context, id string) error
	// Containers reads live containers from the engine.
	Containers(ctx context.Context, id string) ([]models.DockerContainer, error)
	// Info reads a live engine summary for host detail views.
	Info(ctx context.Context, id string) (models.EngineInfo, error)
	// Client returns the live connector for a registered host.
	Client(id string) (*docker.Client, error)
	// DockerActor implements actions.ActorResolver.
	DockerActor(hostID string) (actions.Actor, error)
	// LoadFromRepo restores clients and sync loops for persisted hosts.
	// Probe failures mark the host unreachable but still register it.
	LoadFromRepo(ctx context.Context) error
	// RecordCycle persists source health after a sync cycle.
	RecordCycle(ref source.Ref, cycleErr error)
}

// DockerClientFactory builds a connector for a host row. Tests inject fakes
// here; nil means the real Engine API client.
type DockerClientFactory func(endpoint string) (*docker.Client, error)

type hostService struct {
	repo      repository.Store
	scheduler *syncer.Scheduler
	store     *syncer.Store
	collector *usage.Collector
	cfg       *config.Config
	logger    *slog.Logger
	factory   DockerClientFactory

	mu      sync.RWMutex
	clients map[string]*docker.Client
}

func NewHostService(repo repository.Store, sched *syncer.Scheduler, store *syncer.Store, collector *usage.Collector, cfg *config.Config, log *slog.Logger) HostService {
	return newHostService(repo, sched, store, collector, cfg, log, nil)
}

// NewHostServiceWithFactory is for tests: Add and LoadFromRepo build clients
// through the factory instead of dialing real engines.
func NewHostServiceWithFactory(repo repository.Store, sched *syncer.Scheduler, store *syncer.Store, collector *usage.Collector, cfg *config.Config, log *slog.Logger, factory DockerClientFactory) HostService {
	return newHostService(repo, sched, store, collector, cfg, log, factory)
}

func newHostService(repo repository.Store, sched *syncer.Scheduler, store *syncer.Store, collector *usage.Collector, cfg *config.Config, log *slog.Logger, factory DockerClientFactory) HostService {
	if log == nil {
		log = slog.Default()
	}
	return &hostService{
		repo:      repo,
		scheduler: sched,
		store:     store,
		collector: collector,
		cfg:       cfg,
		logger:    log,
		factory:   factory,
		clients:   make(map[string]*docker.Client),
	}
}

func (s *hostService) List(ctx context.Context) ([]*models.DockerHost, error) {
	return s.repo.ListHosts(ctx)
}

func (s *hostService) Get(ctx context.Context, id string) (*models.DockerHost, error) {
	return s.repo.GetHost(ctx, id)
}

func (s *hostService) Add(ctx context.Context, name, endpoint string) (*models.DockerHost, error) {
	if !validate.SourceName(name) {
		return nil, fmt.Errorf("%w: invalid source name %q", source.ErrInvalidInput, name)
	}
	if err := checkSourceCapacity(ctx, s.repo, s.cfg.MaxSources); err != nil {
		return nil, err
	}

	client, err := s.buildClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("build host client: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		_ = client.Close()
		return nil, source.Unreachable(source.Ref{Kind: source.KindDocker, ID: name}, err)
	}

	h := &models.DockerHost{
		Name:      name,
		Endpoint:  endpoint,
		Status:    models.SourceStatusHealthy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateHost(ctx, h); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("persist host: %w", err)
	}
	client.HostID = h.ID

	if err := s.register(h.ID, client); err != nil {
		_ = s.repo.DeleteHost(ctx, h.ID)
		_ = client.Close()
		return nil, err
	}

	audit.LogRegistry(logger.FromContext(ctx), "host.add", string(source.KindDocker), h.ID, "success", name)
	s.logger.Info("host registered", "host_id", h.ID, "name", name, "endpoint", endpoint)
	return h, nil
}

func (s *hostService) Remove(ctx context.Context, id string) error {
	if _, err := s.repo.GetHost(ctx, id); err != nil {
		return err
	}

	ref := source.Ref{Kind: source.KindDocker, ID: id}
	s.scheduler.RemoveSource(ref)
	s.collector.RemoveProvider(ref)

	s.mu.Lock()
	client := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}

	if err := s.repo.DeleteHost(ctx, id); err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	audit.LogRegistry(logger.FromContext(ctx), "host.remove", string(source.KindDocker), id, "success", "")
	s.logger.Info("host removed", "host_id", id)
	return nil
}

func (s *hostService) Containers(ctx context.Context, id string) ([]models.DockerContainer, error) {
	client, err := s.Client(id)
	if err != nil {
		return nil, err
	}
	containers, err := client.Containers(ctx)
	if err != nil {
		return nil, source.Unreachable(source.Ref{Kind: source.KindDocker, ID: id}, err)
	}
	return containers, nil
}

func (s *hostService) Info(ctx context.Context, id string) (models.EngineInfo, error) {
	client, err := s.Client(id)
	if err != nil {
		return models.EngineInfo{}, err
	}
	info, err := client.Info(ctx)
	if err != nil {
		return models.EngineInfo{}, source.Unreachable(source.Ref{Kind: source.KindDocker, ID: id}, err)
	}
	return info, nil
}

func (s *hostService) Client(id string) (*docker.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return nil, &source.NotFoundError{ID: id}
	}
	return client, nil
}

func (s *hostService) DockerActor(hostID string) (actions.Actor, error) {
	return s.Client(hostID)
}

func (s *hostService) LoadFromRepo(ctx context.Context) error {
	hosts, err := s.repo.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hosts {
		h := h
		g.Go(func() error {
			client, err := s.buildClient(h.Endpoint)
			if err != nil {
				s.logger.Warn("host client unavailable", "host_id", h.ID, "error", err)
				_ = s.repo.SetHostStatus(gctx, h.ID, models.SourceStatusUnreachable, err.Error(), h.LastSyncAt)
				return nil
			}
			client.HostID = h.ID

			probeCtx, cancel := context.WithTimeout(gctx, registerTimeout)
			defer cancel()
			if err := client.Ping(probeCtx); err != nil {
				// Registered anyway: the sync loop keeps retrying.
				s.logger.Warn("host probe failed", "host_id", h.ID, "error", err)
				_ = s.repo.SetHostStatus(gctx, h.ID, models.SourceStatusUnreachable, err.Error(), h.LastSyncAt)
			}
			return s.register(h.ID, client)
		})
	}
	return g.Wait()
}

func (s *hostService) RecordCycle(ref source.Ref, cycleErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	job, _ := s.scheduler.Job(ref)
	status := models.SourceStatusHealthy
	lastErr := ""
	if cycleErr != nil {
		lastErr = cycleErr.Error()
		status = models.SourceStatusDegraded
		if job.ConsecutiveFailures >= unreachableAfter || job.LastSuccessAt.IsZero() {
			status = models.SourceStatusUnreachable
		}
	}
	if err := s.repo.SetHostStatus(ctx, ref.ID, status, lastErr, job.LastSuccessAt); err != nil {
		s.logger.Warn("persist host health", "host_id", ref.ID, "error", err)
	}
}

func (s *hostService) register(id string, client *docker.Client) error {
	s.mu.Lock()
	s.clients[id] = client
	s.mu.Unlock()

	ref := source.Ref{Kind: source.KindDocker, ID: id}
	sync := newDockerSyncer(ref, client, s.logger)
	if err := s.scheduler.AddSource(ref, sync); err != nil {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		return err
	}
	s.collector.AddProvider(usage.NewDockerProvider(ref, client, s.store))
	return nil
}

func (s *hostService) buildClient(endpoint string) (*docker.Client, error) {
	var client *docker.Client
	var err error
	if s.factory != nil {
		client, err = s.factory(endpoint)
	} else {
		client, err = docker.NewClient(endpoint)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.DockerTimeout() > 0 {
		client.SetTimeout(s.cfg.DockerTimeout())
	}
	if s.cfg.DockerRateLimitPerSec > 0 && s.cfg.DockerRateLimitBurst > 0 {
		client.SetLimiter(rate.NewLimiter(rate.Limit(s.cfg.DockerRateLimitPerSec), s.cfg.DockerRateLimitBurst))
	}
	return client, nil
}
