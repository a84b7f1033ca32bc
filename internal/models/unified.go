package models

import "time"

// Unified id prefixes. The prefix is load-bearing: the action dispatcher and
// logs routing strip it to recover the source-native id, and the consuming
// side navigates on it. Changing either value breaks that contract.
const (
	UnifiedPrefixK8s    = "k8s-"
	UnifiedPrefixDocker = "docker-"
)

// UnifiedContainer is the source-agnostic representation of one runtime
// entity: a Kubernetes pod or a Docker container. Derived from snapshots on
// demand, never persisted.
type UnifiedContainer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Source       string    `json:"source"` // kubernetes | docker
	Status       string    `json:"status"`
	Image        string    `json:"image,omitempty"`
	HostOrNode   string    `json:"host_or_node,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	RestartCount int       `json:"restart_count"`
	CreatedAt    time.Time `json:"created_at"`

	// Source-specific context for navigation.
	ClusterID string `json:"cluster_id,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	HostID    string `json:"host_id,omitempty"`
}

// ContainerFilter narrows a unified container listing. Zero value matches
// everything. Query matches name or image, case-insensitively.
type ContainerFilter struct {
	Source   string `json:"source,omitempty"`
	Status   string `json:"status,omitempty"`
	Query    string `json:"q,omitempty"`
	Scope    string `json:"scope,omitempty"` // cluster:<id> | host:<id>
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// ContainerPage is one page of a filtered unified listing.
type ContainerPage struct {
	Items    []UnifiedContainer `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// SourceStats aggregates one backend's share of the unified view.
type SourceStats struct {
	Total       int       `json:"total"`
	Running     int       `json:"running"`
	Sources     int       `json:"sources"`
	OldestSync  time.Time `json:"oldest_sync,omitempty"`
	Unreachable int       `json:"unreachable"`
}

// UnifiedStats is the cross-backend aggregate: totals, running counts and the
// running ratio. PercentageRunning is 0 when Total is 0.
type UnifiedStats struct {
	Kubernetes        SourceStats `json:"kubernetes"`
	Docker            SourceStats `json:"docker"`
	Total             int         `json:"total"`
	Running           int         `json:"running"`
	PercentageRunning float64     `json:"percentage_running"`
	GeneratedAt       time.Time   `json:"generated_at"`
}
