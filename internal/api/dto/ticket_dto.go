package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Department  string                `json:"department"`
	Metadata    map[string]string     `json:"metadata"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	TechnicianID string `json:"technician_id"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Resolution string `json:"resolution"`
}

// ReasonRequest carries an optional free-text reason (close, cancel, reopen, escalate).
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content  string `json:"content"`
	Internal bool   `json:"internal"`
}

// RatingRequest payload.
type RatingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// AttachmentRequest describes an upload already placed in storage.
type AttachmentRequest struct {
	Name       string `json:"name"`
	StorageRef string `json:"storage_ref"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticket_number"`
	Title        string                `json:"title"`
	Category     domain.TicketCategory `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	Department   string                `json:"department,omitempty"`
	CreatedBy    string                `json:"created_by"`
	AssignedTo   *string               `json:"assigned_to"`
	IsEscalated  bool                  `json:"is_escalated"`
	Version      int                   `json:"version"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description   string               `json:"description"`
	AssignedBy    *string              `json:"assigned_by"`
	AssignedAt    *time.Time           `json:"assigned_at"`
	SLA           SLAResponse          `json:"sla"`
	Escalation    EscalationResponse   `json:"escalation"`
	Resolution    ResolutionResponse   `json:"resolution"`
	ClosedAt      *time.Time           `json:"closed_at"`
	CancelledAt   *time.Time           `json:"cancelled_at"`
	ReopenedAt    *time.Time           `json:"reopened_at"`
	ReopenCount   int                  `json:"reopen_count"`
	Metadata      map[string]string    `json:"metadata,omitempty"`
	Comments      []CommentResponse    `json:"comments"`
	Attachments   []AttachmentResponse `json:"attachments"`
	StatusHistory []HistoryResponse    `json:"status_history"`
	Standing      *SLAStandingResponse `json:"sla_standing,omitempty"`
}

// SLATargetResponse is one commitment.
type SLATargetResponse struct {
	TargetMinutes int        `json:"target_minutes"`
	Deadline      time.Time  `json:"deadline"`
	ActualAt      *time.Time `json:"actual_at"`
	Breached      bool       `json:"breached"`
}

// SLAResponse groups the commitments.
type SLAResponse struct {
	Response        SLATargetResponse `json:"response"`
	Resolution      SLATargetResponse `json:"resolution"`
	FirstResponseAt *time.Time        `json:"first_response_at"`
}

// SLAStandingResponse is the live SLA evaluation.
type SLAStandingResponse struct {
	Status     string `json:"status"`
	Response   string `json:"response"`
	Resolution string `json:"resolution"`
	Urgency    int    `json:"urgency"`
}

// EscalationRecordResponse is one escalation history item.
type EscalationRecordResponse struct {
	Level        int                   `json:"level"`
	FromPriority domain.TicketPriority `json:"from_priority"`
	ToPriority   domain.TicketPriority `json:"to_priority"`
	FromAssignee *string               `json:"from_assignee"`
	ToAssignee   *string               `json:"to_assignee"`
	EscalatedBy  string                `json:"escalated_by"`
	EscalatedAt  time.Time             `json:"escalated_at"`
	Reason       string                `json:"reason"`
	Automatic    bool                  `json:"automatic"`
}

// EscalationResponse is the escalation state.
type EscalationResponse struct {
	Level       int                        `json:"level"`
	EscalatedBy *string                    `json:"escalated_by"`
	EscalatedAt *time.Time                 `json:"escalated_at"`
	Reason      string                     `json:"reason,omitempty"`
	History     []EscalationRecordResponse `json:"history"`
}

// ResolutionResponse is the outcome of the ticket.
type ResolutionResponse struct {
	Description           string     `json:"description,omitempty"`
	ResolvedBy            *string    `json:"resolved_by"`
	ResolvedAt            *time.Time `json:"resolved_at"`
	ResolutionTimeMinutes *int64     `json:"resolution_time_minutes"`
	Rating                *int       `json:"rating"`
	RatingComment         string     `json:"rating_comment,omitempty"`
	RatedAt               *time.Time `json:"rated_at"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Internal  bool      `json:"internal"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StorageRef string    `json:"storage_ref"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// HistoryResponse is one status-history entry.
type HistoryResponse struct {
	Status    domain.TicketStatus  `json:"status"`
	Action    domain.HistoryAction `json:"action"`
	ChangedBy string               `json:"changed_by"`
	ChangedAt time.Time            `json:"changed_at"`
	Comment   string               `json:"comment,omitempty"`
}
