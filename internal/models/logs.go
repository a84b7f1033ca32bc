package models

import "time"

// LogBundle is one fetched log window for a unified entity.
type LogBundle struct {
	EntityID  string    `json:"entity_id"`
	Container string    `json:"container,omitempty"`
	Tail      int       `json:"tail"`
	Content   string    `json:"logs"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Log issue severities, guessed from the matched keyword.
const (
	LogSeverityFatal   = "fatal"
	LogSeverityError   = "error"
	LogSeverityWarning = "warning"
)

// LogIssue is one error-looking line found by the log scan.
type LogIssue struct {
	// Line is 1-based within the fetched window, not the full log.
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// LogScan is the result of scanning a log window for error-looking lines.
type LogScan struct {
	EntityID   string     `json:"entity_id"`
	Container  string     `json:"container,omitempty"`
	Tail       int        `json:"tail"`
	TotalLines int        `json:"total_lines"`
	Issues     []LogIssue `json:"issues"`
	ScannedAt  time.Time  `json:"scanned_at"`
}
