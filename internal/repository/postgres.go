package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// Postgres implements Store on PostgreSQL for deployments where several
// replicas share one registry.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects using a lib/pq connection string.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// Close closes the database connection.
func (r *Postgres) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers; used by the readiness probe.
func (r *Postgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations executes the schema script.
func (r *Postgres) RunMigrations(migrationSQL string) error {
	_, err := r.db.Exec(migrationSQL)
	return err
}

// ClusterRepo implementation

func (r *Postgres) CreateCluster(ctx context.Context, c *models.Cluster) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO clusters (id, name, api_endpoint, kubeconfig_path, kubeconfig, version, status, last_sync_at, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	return instrument("cluster.create", func() error {
		_, err := r.db.ExecContext(ctx, query,
			c.ID, c.Name, c.APIEndpoint, c.KubeconfigPath, c.Kubeconfig,
			c.Version, c.Status, c.LastSyncAt, c.LastError, c.CreatedAt,
		)
		return err
	})
}

func (r *Postgres) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	var c models.Cluster
	err := r.db.GetContext(ctx, &c, `SELECT * FROM clusters WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &source.NotFoundError{ID: id}
	}
	return &c, err
}

func (r *Postgres) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	var clusters []*models.Cluster
	err := r.db.SelectContext(ctx, &clusters, `SELECT * FROM clusters ORDER BY created_at DESC`)
	return clusters, err
}

func (r *Postgres) UpdateCluster(ctx context.Context, c *models.Cluster) error {
	query := `
		UPDATE clusters
		SET name = $1, api_endpoint = $2, kubeconfig_path = $3, kubeconfig = $4,
		    version = $5, status = $6, last_sync_at = $7, last_error = $8
		WHERE id = $9
	`
	_, err := r.db.ExecContext(ctx, query,
		c.Name, c.APIEndpoint, c.KubeconfigPath, c.Kubeconfig,
		c.Version, c.Status, c.LastSyncAt, c.LastError, c.ID,
	)
	return err
}

func (r *Postgres) SetClusterStatus(ctx context.Context, id, status, lastError string, lastSyncAt time.Time) error {
	return instrument("cluster.set_status", func() error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE clusters SET status = $1, last_error = $2, last_sync_at = $3 WHERE id = $4`,
			status, lastError, lastSyncAt, id,
		)
		return err
	})
}

func (r *Postgres) DeleteCluster(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = $1`, id)
	return err
}

// HostRepo implementation

func (r *Postgres) CreateHost(ctx context.Context, h *models.DockerHost) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO docker_hosts (id, name, endpoint, status, last_sync_at, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return instrument("host.create", func() error {
		_, err := r.db.ExecContext(ctx, query,
			h.ID, h.Name, h.Endpoint, h.Status, h.LastSyncAt, h.LastError, h.CreatedAt,
		)
		return err
	})
}

func (r *Postgres) GetHost(ctx context.Context, id string) (*models.DockerHost, error) {
	var h models.DockerHost
	err := r.db.GetContext(ctx, &h, `SELECT * FROM docker_hosts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &source.NotFoundError{ID: id}
	}
	return &h, err
}

func (r *Postgres) ListHosts(ctx context.Context) ([]*models.DockerHost, error) {
	var hosts []*models.DockerHost
	err := r.db.SelectContext(ctx, &hosts, `SELECT * FROM docker_hosts ORDER BY created_at DESC`)
	return hosts, err
}

func (r *Postgres) UpdateHost(ctx context.Context, h *models.DockerHost) error {
	query := `
		UPDATE docker_hosts
		SET name = $1, endpoint = $2, status = $3, last_sync_at = $4, last_error = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		h.Name, h.Endpoint, h.Status, h.LastSyncAt, h.LastError, h.ID,
	)
	return err
}

func (r *Postgres) SetHostStatus(ctx context.Context, id, status, lastError string, lastSyncAt time.Time) error {
	return instrument("host.set_status", func() error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE docker_hosts SET status = $1, last_error = $2, last_sync_at = $3 WHERE id = $4`,
			status, lastError, lastSyncAt, id,
		)
		return err
	})
}

func (r *Postgres) DeleteHost(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM docker_hosts WHERE id = $1`, id)
	return err
}

// NamespaceRepo implementation

func (r *Postgres) UpsertNamespace(ctx context.Context, ns *models.Namespace) error {
	if ns.FirstSeenAt.IsZero() {
		ns.FirstSeenAt = time.Now().UTC()
	}
	if ns.LastSeenAt.IsZero() {
		ns.LastSeenAt = ns.FirstSeenAt
	}

	query := `
		INSERT INTO namespaces (cluster_id, name, phase, stale, missed_cycles, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, FALSE, 0, $4, $5)
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

func (r *Postgres) ListNamespaces(ctx context.Context, clusterID string) ([]*models.Namespace, error) {
	var namespaces []*models.Namespace
	err := r.db.SelectContext(ctx, &namespaces,
		`SELECT * FROM namespaces WHERE cluster_id = $1 ORDER BY name`, clusterID)
	return namespaces, err
}

func (r *Postgres) MarkMissingNamespaces(ctx context.Context, clusterID string, seen []string, staleAfter int) error {
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
	query = r.db.Rebind(query)
	return instrument("namespace.mark_missing", func() error {
		_, err := r.db.ExecContext(ctx, query, args...)
		return err
	})
}

// EventRepo implementation

func (r *Postgres) UpsertEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Count <= 0 {
		e.Count = 1
	}

	// Same conflict arithmetic as the SQLite implementation; see there.
	query := `
		INSERT INTO events (id, cluster_id, namespace, involved_kind, involved_name, type, reason, message, count, first_timestamp, last_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cluster_id, namespace, involved_kind, involved_name, reason) DO UPDATE SET
			type = excluded.type,
			message = excluded.message,
			count = CASE
				WHEN excluded.count > events.count THEN excluded.count
				WHEN excluded.last_timestamp > events.last_timestamp THEN events.count + 1
				ELSE events.count
			END,
			last_timestamp = CASE
				WHEN excluded.last_timestamp > events.last_timestamp THEN excluded.last_timestamp
				ELSE events.last_timestamp
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

func (r *Postgres) ListEvents(ctx context.Context, f EventFilter) ([]*models.Event, error) {
	query := `SELECT * FROM events WHERE 1=1`
	args := []interface{}{}
	n := 1

	if f.ClusterID != "" {
		query += fmt.Sprintf(" AND cluster_id = $%d", n)
		args = append(args, f.ClusterID)
		n++
	}
	if f.Namespace != "" {
		query += fmt.Sprintf(" AND namespace = $%d", n)
		args = append(args, f.Namespace)
		n++
	}
	if f.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", n)
		args = append(args, f.Type)
		n++
	}
	query += fmt.Sprintf(" ORDER BY last_timestamp DESC LIMIT $%d", n)
	args = append(args, f.limit())

	var events []*models.Event
	err := r.db.SelectContext(ctx, &events, query, args...)
	return events, err
}

func (r *Postgres) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := instrument("event.prune", func() error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE last_timestamp < $1`, olderThan)
		if err != nil {
			return err
		}
		pruned, err = res.RowsAffected()
		return err
	})
	return pruned, err
}
