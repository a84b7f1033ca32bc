package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// SQLite implements Store on a single-file database.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens (or creates) the database at dsn. ":memory:" is accepted
// for tests.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One pooled connection: serializes writers (no SQLITE_BUSY churn) and
	// keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (r *SQLite) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers; used by the readiness probe.
func (r *SQLite) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations executes the schema script.
func (r *SQLite) RunMigrations(migrationSQL string) error {
	_, err := r.db.Exec(migrationSQL)
	return err
}

// ClusterRepo implementation

func (r *SQLite) CreateCluster(ctx context.Context, c *models.Cluster) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO clusters (id, name, api_endpoint, kubeconfig_path, kubeconfig, version, status, last_sync_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return instrument("cluster.create", func() error {
		_, err := r.db.ExecContext(ctx, query,
			c.ID, c.Name, c.APIEndpoint, c.KubeconfigPath, c.Kubeconfig,
			c.Version, c.Status, c.LastSyncAt, c.LastError, c.CreatedAt,
		)
		return err
	})
}

func (r *SQLite) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	var c models.Cluster
	err := r.db.GetContext(ctx, &c, `SELECT * FROM clusters WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &source.NotFoundError{ID: id}
	}
	return &c, err
}

func (r *SQLite) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	var clusters []*models.Cluster
	err := r.db.SelectContext(ctx, &clusters, `SELECT * FROM clusters ORDER BY created_at DESC`)
	return clusters, err
}

func (r *SQLite) UpdateCluster(ctx context.Context, c *models.Cluster) error {
	query := `
		UPDATE clusters
		SET name = ?, api_endpoint = ?, kubeconfig_path = ?, kubeconfig = ?,
		    version = ?, status = ?, last_sync_at = ?, last_error = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		c.Name, c.APIEndpoint, c.KubeconfigPath, c.Kubeconfig,
		c.Version, c.Status, c.LastSyncAt, c.LastError, c.ID,
	)
	return err
}

func (r *SQLite) SetClusterStatus(ctx context.Context, id, status, lastError string, lastSyncAt time.Time) error {
	return instrument("cluster.set_status", func() error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE clusters SET status = ?, last_error = ?, last_sync_at = ? WHERE id = ?`,
			status, lastError, lastSyncAt, id,
		)
		return err
	})
}

func (r *SQLite) DeleteCluster(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = ?`, id)
	return err
}

// HostRepo implementation

func (r *SQLite) CreateHost(ctx context.Context, h *models.DockerHost) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO docker_hosts (id, name, endpoint, status, last_sync_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return instrument("host.create", func() error {
		_, err := r.db.ExecContext(ctx, query,
			h.ID, h.Name, h.Endpoint, h.Status, h.LastSyncAt, h.LastError, h.CreatedAt,
		)
		return err
	})
}

func (r *SQLite) GetHost(ctx context.Context, id string) (*models.DockerHost, error) {
	var h models.DockerHost
	err := r.db.GetContext(ctx, &h, `SELECT * FROM docker_hosts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &source.NotFoundError{ID: id}
	}
	return &h, err
}

func (r *SQLite) ListHosts(ctx context.Context) ([]*models.DockerHost, error) {
	var hosts []*models.DockerHost
	err := r.db.SelectContext(ctx, &hosts, `SELECT * FROM docker_hosts ORDER BY created_at DESC`)
	return hosts, err
}

func (r *SQLite) UpdateHost(ctx context.Context, h *models.DockerHost) error {
	query := `
		UPDATE docker_hosts
		SET name = ?, endpoint = ?, status = ?, last_sync_at = ?, last_error = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		h.Name, h.Endpoint, h.Status, h.LastSyncAt, h.LastError, h.ID,
	)
	return err
}

func (r *SQLite) SetHostStatus(ctx context.Context, id, status, lastError string, lastSyncAt time.Time) error {
	return instrument("host.set_status", func() error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE docker_hosts SET status = ?, last_error = ?, last_sync_at = ? WHERE id = ?`,
			status, lastError, lastSyncAt, id,
		)
		return err
	})
}

func (r *SQLite) DeleteHost(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM docker_hosts WHERE id = ?`, id)
	return err
}

// NamespaceRepo implementation

func (r *SQLite) UpsertNamespace(ctx context.Context, ns *models.Namespace) error {
	if ns.FirstSeenAt.IsZero() {
		ns.FirstSeenAt = time.Now().UTC()
	}
	if ns.LastSeenAt.IsZero() {
		ns.LastSeenAt = ns.FirstSeenAt
	}

	query := `
		INSERT INTO namespaces (cluster_id, name, phase, stale, missed_cycles, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, FALSE, 0, ?, ?)
		ON CONFLICT (cluster_id, name) DO UPDATE SET
			phase = excluded.phase,
			stale = FALSE,
			missed_cycles = 0,
			last_seen_at = excluded.last_seen_at
	`
	return instrument("namespace.upsert", func() error {
		_, err := r.db.ExecContext(ctx, query,
			ns.ClusterID, ns.Name, ns.Phase, ns.FirstSeenAt, ns.LastSeenAt,
		)
		return err
	})
}

func (r *SQLite) ListNamespaces(ctx context.Context, clusterID string) ([]*models.Namespace, error) {
	var namespaces []*models.Namespace
	err := r.db.SelectContext(ctx, &namespaces,
		`SELECT * FROM namespaces WHERE cluster_id = ? ORDER BY name`, clusterID)
	return namespaces, err
}

func (r *SQLite) MarkMissingNamespaces(ctx context.Context, clusterID string, seen []string, staleAfter int) error {
	query := `
		UPDATE namespaces
		SET missed_cycles = missed_cycles + 1,
		    stale = CASE WHEN missed_cycles + 1 >= ? THEN TRUE ELSE stale END
		WHERE cluster_id = ?
	`
	args := []interface{}{staleAfter, clusterID}
	if len(seen) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND name NOT IN (?)`, staleAfter, clusterID, seen)
		if err != nil {
			return err
		}
	}
	return instrument("namespace.mark_missing", func() error {
		_, err := r.db.ExecContext(ctx, query, args...)
		return err
	})
}

// EventRepo implementation

func (r *SQLite) UpsertEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Count <= 0 {
		e.Count = 1
	}

	// On conflict: a larger incoming count wins (the API server already
	// de-duplicated), a newer occurrence of an unchanged count bumps by one,
	// and an identical replay is a no-op so repeated cycles don't inflate.
	query := `
		INSERT INTO events (id, cluster_id, namespace, involved_kind, involved_name, type, reason, message, count, first_timestamp, last_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cluster_id, namespace, involved_kind, involved_name, reason) DO UPDATE SET
			type = excluded.type,
			message = excluded.message,
			count = CASE
				WHEN excluded.count > count THEN excluded.count
				WHEN excluded.last_timestamp > last_timestamp THEN count + 1
				ELSE count
			END,
			last_timestamp = CASE
				WHEN excluded.last_timestamp > last_timestamp THEN excluded.last_timestamp
				ELSE last_timestamp
			END
	`
	return instrument("event.upsert", func() error {
		_, err := r.db.ExecContext(ctx, query,
			e.ID, e.ClusterID, e.Namespace, e.InvolvedKind, e.InvolvedName,
			e.Type, e.Reason, e.Message, e.Count, e.FirstTimestamp, e.LastTimestamp,
		)
		return err
	})
}

func (r *SQLite) ListEvents(ctx context.Context, f EventFilter) ([]*models.Event, error) {
	query := `SELECT * FROM events WHERE 1=1`
	args := []interface{}{}

	if f.ClusterID != "" {
		query += ` AND cluster_id = ?`
		args = append(args, f.ClusterID)
	}
	if f.Namespace != "" {
		query += ` AND namespace = ?`
		args = append(args, f.Namespace)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY last_timestamp DESC LIMIT ?`
	args = append(args, f.limit())

	var events []*models.Event
	err := r.db.SelectContext(ctx, &events, query, args...)
	return events, err
}

func (r *SQLite) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := instrument("event.prune", func() error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE last_timestamp < ?`, olderThan)
		if err != nil {
			return err
		}
		pruned, err = res.RowsAffected()
		return err
	})
	return pruned, err
}
