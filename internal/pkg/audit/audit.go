// Package audit provides audit logging for mutating operations.
// Logs who (request), what (entity), when, and outcome for lifecycle actions
// and source registry changes.
package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// Entry represents one audit line (structured for retention).
type Entry struct {
	Time      string `json:"time"` // ISO8601
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
	Source    string `json:"source,omitempty"` // kubernetes | docker
	SourceID  string `json:"source_id,omitempty"`
	EntityID  string `json:"entity_id,omitempty"` // unified id, prefix retained
	Outcome   string `json:"outcome"`             // "success" | "failure"
	Message   string `json:"message,omitempty"`
}

var auditLog = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// LogAction records a lifecycle action dispatch. Call after the action
// completes or fails.
func LogAction(requestID, action, entityID, outcome, message string) {
	write(Entry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		RequestID: requestID,
		EntityID:  entityID,
		Outcome:   outcome,
		Message:   message,
	})
}

// LogRegistry records a source registry change (add/remove of a cluster or host).
func LogRegistry(requestID, action, sourceKind, sourceID, outcome, message string) {
	write(Entry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		RequestID: requestID,
		Source:    sourceKind,
		SourceID:  sourceID,
		Outcome:   outcome,
		Message:   message,
	})
}

func write(e Entry) {
	auditLog.Info("audit", "event", mustMarshal(e))
}

func mustMarshal(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
