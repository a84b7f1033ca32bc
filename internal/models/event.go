package models

import "time"

// Event types as reported by the Kubernetes API.
const (
	EventNormal  = "Normal"
	EventWarning = "Warning"
	EventError   = "Error"
)

// Event is a Kubernetes event row. Repeated identical events (same cluster,
// namespace, involved object and reason) bump Count and LastTimestamp instead
// of inserting a duplicate, mirroring the API server's own de-duplication.
type Event struct {
	ID             string    `json:"id" db:"id"`
	ClusterID      string    `json:"cluster_id" db:"cluster_id"`
	Namespace      string    `json:"namespace" db:"namespace"`
	InvolvedKind   string    `json:"involved_kind" db:"involved_kind"`
	InvolvedName   string    `json:"involved_name" db:"involved_name"`
	Type           string    `json:"type" db:"type"`
	Reason         string    `json:"reason" db:"reason"`
	Message        string    `json:"message" db:"message"`
	Count          int       `json:"count" db:"count"`
	FirstTimestamp time.Time `json:"first_timestamp" db:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp" db:"last_timestamp"`
}
