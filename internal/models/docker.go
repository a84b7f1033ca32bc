package models

import "time"

// Normalized Docker container states. Free-text engine states are folded into
// this set by the normalization layer; anything unrecognized becomes unknown.
const (
	ContainerCreated    = "created"
	ContainerRunning    = "running"
	ContainerPaused     = "paused"
	ContainerExited     = "exited"
	ContainerDead       = "dead"
	ContainerRestarting = "restarting"
	ContainerUnknown    = "unknown"
)

// DockerHost represents a registered Docker engine (unix socket or tcp).
type DockerHost struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	Status     string    `json:"status" db:"status"`
	LastSyncAt time.Time `json:"last_sync_at" db:"last_sync_at"`
	LastError  string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DockerContainer is a snapshot-resident view of one container. ID carries the
// engine's container id; the unified id is derived from it, which is what lets
// the action path recover the runtime id by stripping the prefix. ContainerID
// repeats it for API payloads that show both.
type DockerContainer struct {
	ID           string    `json:"id"`
	HostID       string    `json:"host_id"`
	ContainerID  string    `json:"container_id"`
	Name         string    `json:"name"`
	Image        string    `json:"image"`
	Status       string    `json:"status"`
	RawState     string    `json:"raw_state,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Ports        []string  `json:"ports,omitempty"`
	RestartCount int       `json:"restart_count"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
}

// EngineInfo is a summary of a Docker engine, shown on host detail views.
type EngineInfo struct {
	ServerVersion     string `json:"server_version"`
	OperatingSystem   string `json:"operating_system"`
	Architecture      string `json:"architecture"`
	NCPU              int    `json:"ncpu"`
	MemTotal          int64  `json:"mem_total"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containers_running"`
	ContainersPaused  int    `json:"containers_paused"`
	ContainersStopped int    `json:"containers_stopped"`
	Images            int    `json:"images"`
}
