package domain

import "time"

// Audit actions
const (
	AuditSuspiciousMovement = "SUSPICIOUS_MOVEMENT"
	AuditVerifyReadingLog   = "VERIFY_READING_LOG"
	AuditRejectReadingLog   = "REJECT_READING_LOG"
)

// AuditLog is an append-only trail entry. The engine writes but never reads it;
// administrators list it through AuditLogFilter.
type AuditLog struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditLogFilter selects audit entries, newest first. Empty fields match everything.
type AuditLogFilter struct {
	Action  string
	ActorID string
	Limit   int // 0 means no limit
	Offset  int
}

// AuditLogPage is one page of the audit trail
type AuditLogPage struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
