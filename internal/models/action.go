package models

import "time"

// Lifecycle actions accepted by the dispatcher. Only Docker-backed entities
// are actionable.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionPause   = "pause"
	ActionUnpause = "unpause"
	ActionKill    = "kill"
	ActionRemove  = "remove"
)

// ActionResult is returned synchronously to the caller. Failures are never
// retried automatically; retry is the caller's decision.
type ActionResult struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Status      string    `json:"status"` // ok | error
	Message     string    `json:"message,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
