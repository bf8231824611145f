package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket.created"
	EventTicketAssigned      EventType = "ticket.assigned"
	EventTicketStatusChanged EventType = "ticket.status_changed"
	EventTicketCommented     EventType = "ticket.commented"
	EventTicketEscalated     EventType = "ticket.escalated"
	EventTicketResolved      EventType = "ticket.resolved"
	EventTicketReopened      EventType = "ticket.reopened"
	EventTicketRated         EventType = "ticket.rated"
	EventTicketSLABreached   EventType = "ticket.sla_breached"
	EventTicketDeleted       EventType = "ticket.deleted"
)

// AllEventTypes lists every event the service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketAssigned,
	EventTicketStatusChanged,
	EventTicketCommented,
	EventTicketEscalated,
	EventTicketResolved,
	EventTicketReopened,
	EventTicketRated,
	EventTicketSLABreached,
	EventTicketDeleted,
}

// TicketSnapshot is the immutable view of a ticket carried by an event.
type TicketSnapshot struct {
	ID              string                `json:"id"`
	TicketNumber    string                `json:"ticket_number"`
	Title           string                `json:"title"`
	Category        domain.TicketCategory `json:"category"`
	Priority        domain.TicketPriority `json:"priority"`
	Status          domain.TicketStatus   `json:"status"`
	CreatedBy       string                `json:"created_by"`
	AssignedTo      *string               `json:"assigned_to,omitempty"`
	EscalationLevel int                   `json:"escalation_level"`
	ResponseDue     time.Time             `json:"response_due"`
	ResolutionDue   time.Time             `json:"resolution_due"`
}

// Snapshot copies the fields of t that notification consumers need.
func Snapshot(t *domain.Ticket) TicketSnapshot {
	s := TicketSnapshot{
		ID:              t.ID,
		TicketNumber:    t.TicketNumber,
		Title:           t.Title,
		Category:        t.Category,
		Priority:        t.Priority,
		Status:          t.Status,
		CreatedBy:       t.CreatedBy,
		EscalationLevel: t.Escalation.Level,
		ResponseDue:     t.SLA.Response.Deadline,
		ResolutionDue:   t.SLA.Resolution.Deadline,
	}
	if t.AssignedTo != nil {
		assignee := *t.AssignedTo
		s.AssignedTo = &assignee
	}
	return s
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id"`
	ActorID   string         `json:"actor_id"`
	Timestamp time.Time      `json:"timestamp"`
	Ticket    TicketSnapshot `json:"ticket"`
	Payload   interface{}    `json:"payload,omitempty"`
}

// NewEvent stamps an event for t.
func NewEvent(eventType EventType, t *domain.Ticket, actorID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  t.ID,
		ActorID:   actorID,
		Timestamp: at,
		Ticket:    Snapshot(t),
		Payload:   payload,
	}
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAssignee *string `json:"previous_assignee,omitempty"`
	Assignee         string  `json:"assignee"`
	Automatic        bool    `json:"automatic"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	Internal    bool   `json:"internal"`
	BodyPreview string `json:"body_preview"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Level        int                   `json:"level"`
	FromPriority domain.TicketPriority `json:"from_priority"`
	ToPriority   domain.TicketPriority `json:"to_priority"`
	Reason       string                `json:"reason"`
	Automatic    bool                  `json:"automatic"`
}

// TicketRatedPayload payload.
type TicketRatedPayload struct {
	Rating int `json:"rating"`
}

// TicketSLABreachedPayload payload.
type TicketSLABreachedPayload struct {
	Response   bool `json:"response"`
	Resolution bool `json:"resolution"`
}
