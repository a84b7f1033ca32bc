package models

import "time"

// Source health statuses, shared by clusters and Docker hosts. Mutated only by
// sync cycles and connectivity probes, never by request handlers.
const (
	SourceStatusConnecting  = "connecting"
	SourceStatusHealthy     = "healthy"
	SourceStatusDegraded    = "degraded"
	SourceStatusUnreachable = "unreachable"
)

// Cluster represents a registered Kubernetes cluster.
type Cluster struct {
	ID             string `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	APIEndpoint    string `json:"api_endpoint" db:"api_endpoint"`
	KubeconfigPath string `json:"kubeconfig_path,omitempty" db:"kubeconfig_path"`
	// Kubeconfig holds inline kubeconfig content when no path is given.
	// Never serialized into API responses.
	Kubeconfig string    `json:"-" db:"kubeconfig"`
	Version    string    `json:"version,omitempty" db:"version"`
	Status     string    `json:"status" db:"status"`
	LastSyncAt time.Time `json:"last_sync_at" db:"last_sync_at"`
	LastError  string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Namespace is a Kubernetes namespace known to a cluster. Rows are upserted by
// sync; a namespace missing from consecutive cycles is marked stale rather than
// deleted, so a flaky API server does not wipe the inventory.
type Namespace struct {
	ClusterID string `json:"cluster_id" db:"cluster_id"`
	Name      string `json:"name" db:"name"`
	Phase     string `json:"phase" db:"phase"`
	Stale     bool   `json:"stale" db:"stale"`
	// MissedCycles counts consecutive sync cycles the namespace was absent
	// from. Reset to zero whenever it is seen again.
	MissedCycles int       `json:"-" db:"missed_cycles"`
	FirstSeenAt  time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// Pod phases as reported by the Kubernetes API.
const (
	PodPending   = "Pending"
	PodRunning   = "Running"
	PodSucceeded = "Succeeded"
	PodFailed    = "Failed"
	PodUnknown   = "Unknown"
)

// Pod is a snapshot-resident view of one pod. ID is the Kubernetes UID.
type Pod struct {
	ID             string    `json:"id"`
	ClusterID      string    `json:"cluster_id"`
	Namespace      string    `json:"namespace"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	NodeName       string    `json:"node_name"`
	IP             string    `json:"ip,omitempty"`
	Image          string    `json:"image,omitempty"`
	ContainerCount int       `json:"container_count"`
	ReadyCount     int       `json:"ready_count"`
	RestartCount   int       `json:"restart_count"`
	CreatedAt      time.Time `json:"created_at"`
}
