// Package repository persists the source registry, the namespace inventory
// and the Kubernetes event log. Two sqlx-backed implementations exist: SQLite
// for single-node deployments and PostgreSQL for shared ones. Everything else
// in the system (snapshots, usage, streams) is in-memory by design.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/models"
)

// ClusterRepo is data access for registered Kubernetes clusters.
type ClusterRepo interface {
	CreateCluster(ctx context.Context, c *models.Cluster) error
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	ListClusters(ctx context.Context) ([]*models.Cluster, error)
	UpdateCluster(ctx context.Context, c *models.Cluster) error
	// SetClusterStatus updates only the health columns, so concurrent sync
	// loops never clobber registration fields.
	SetClusterStatus(ctx context.Context, id, status, lastError string, lastSyncAt time.Time) error
	DeleteCluster(ctx context.Context, id string) error
}

// HostRepo is data access for registered Docker hosts.
type HostRepo interface {
	CreateHost(ctx context.Context, h *models.DockerHost) error
	GetHost(ctx context.Context, id string) (*models.DockerHost, error)
	ListHosts(ctx context.Context) ([]*models.DockerHost, error)
	UpdateHost(ctx context.Context, h *models.DockerHost) error
	SetHostStatus(ctx context.Context, id, status, lastError string, lastSyncAt time.Time) error
	DeleteHost(ctx context.Context, id string) error
}

// NamespaceRepo maintains the per-cluster namespace inventory with stale
// marking instead of deletion.
type NamespaceRepo interface {
	// UpsertNamespace records a namespace seen in the current cycle, clearing
	// any stale flag and resetting its miss counter.
	UpsertNamespace(ctx context.Context, ns *models.Namespace) error
	ListNamespaces(ctx context.Context, clusterID string) ([]*models.Namespace, error)
	// MarkMissingNamespaces bumps the miss counter for every namespace of the
	// cluster not present in seen, flagging rows stale once the counter
	// reaches staleAfter.
	MarkMissingNamespaces(ctx context.Context, clusterID string, seen []string, staleAfter int) error
}

// EventRepo stores Kubernetes events with API-server-style de-duplication.
type EventRepo interface {
	UpsertEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]*models.Event, error)
	// PruneEvents deletes events last seen before the cutoff and reports how
	// many rows went away.
	PruneEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// EventFilter narrows an event listing. Zero value lists everything up to the
// default limit.
type EventFilter struct {
	ClusterID string
	Namespace string
	Type      string
	Limit     int
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func (f EventFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultEventLimit
	case f.Limit > maxEventLimit:
		return maxEventLimit
	default:
		return f.Limit
	}
}

// Store is the full persistence surface handed to services.
type Store interface {
	ClusterRepo
	HostRepo
	NamespaceRepo
	EventRepo

	Ping(ctx context.Context) error
	RunMigrations(migrationSQL string) error
	Close() error
}

// New opens the store for the configured driver.
func New(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
