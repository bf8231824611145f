package domain

import "time"

// HistoryAction labels a status-history entry.
type HistoryAction string

const (
	ActionCreated       HistoryAction = "CREATED"
	ActionAssigned      HistoryAction = "ASSIGNED"
	ActionStatusChanged HistoryAction = "STATUS_CHANGED"
	ActionEscalated     HistoryAction = "ESCALATED"
	ActionReopened      HistoryAction = "REOPENED"
)

// StatusHistoryEntry is the append-only system of record for lifecycle changes.
type StatusHistoryEntry struct {
	Status    TicketStatus
	Action    HistoryAction
	ChangedBy string
	ChangedAt time.Time
	Comment   string
}

// AuditAction names the mutating operation an audit entry describes.
type AuditAction string

const (
	AuditCreate       AuditAction = "CREATE"
	AuditAssign       AuditAction = "ASSIGN"
	AuditStatusChange AuditAction = "STATUS_CHANGE"
	AuditComment      AuditAction = "COMMENT"
	AuditEscalate     AuditAction = "ESCALATE"
	AuditRate         AuditAction = "RATE"
	AuditReopen       AuditAction = "REOPEN"
	AuditAttach       AuditAction = "ATTACH"
	AuditDelete       AuditAction = "DELETE"
)

// FieldChange is one before/after pair in an audit diff. Values are rendered
// as strings; an absent value is nil.
type FieldChange struct {
	Field  string  `json:"field"`
	Before *string `json:"before,omitempty"`
	After  *string `json:"after,omitempty"`
}

// AuditEntry is an immutable audit trail entry.
type AuditEntry struct {
	ID          string        `json:"id"`
	TicketID    string        `json:"ticket_id"`
	Sequence    int           `json:"sequence"`
	Action      AuditAction   `json:"action"`
	PerformedBy string        `json:"performed_by"`
	Timestamp   time.Time     `json:"timestamp"`
	Changes     []FieldChange `json:"changes"`
	Note        string        `json:"note,omitempty"`
	PrevHash    string        `json:"prev_hash"`
	Hash        string        `json:"-"`
}
