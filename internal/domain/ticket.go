package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusReopened   TicketStatus = "REOPENED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusPending,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusReopened,
	TicketStatusCancelled,
}

// Valid reports whether s is part of the fixed status set.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Active reports whether work is still expected on a ticket in this status.
func (s TicketStatus) Active() bool {
	switch s {
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress, TicketStatusPending, TicketStatusReopened:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the lifecycle.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// PriorityLadder is the escalation ladder, lowest first.
var PriorityLadder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Rank returns the position of p on the ladder, or -1 when unknown.
func (p TicketPriority) Rank() int {
	for i, candidate := range PriorityLadder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is part of the fixed priority set.
func (p TicketPriority) Valid() bool {
	return p.Rank() >= 0
}

// Bump returns the next tier up the ladder. Critical stays Critical.
func (p TicketPriority) Bump() TicketPriority {
	rank := p.Rank()
	if rank < 0 || rank == len(PriorityLadder)-1 {
		return p
	}
	return PriorityLadder[rank+1]
}

// TicketCategory classifies the kind of problem reported.
type TicketCategory string

const (
	CategoryHardware TicketCategory = "HARDWARE"
	CategorySoftware TicketCategory = "SOFTWARE"
	CategoryNetwork  TicketCategory = "NETWORK"
	CategoryEmail    TicketCategory = "EMAIL"
	CategoryAccount  TicketCategory = "ACCOUNT"
	CategoryPrinter  TicketCategory = "PRINTER"
	CategoryPhone    TicketCategory = "PHONE"
	CategoryOther    TicketCategory = "OTHER"
)

// AllCategories lists the fixed category set.
var AllCategories = []TicketCategory{
	CategoryHardware,
	CategorySoftware,
	CategoryNetwork,
	CategoryEmail,
	CategoryAccount,
	CategoryPrinter,
	CategoryPhone,
	CategoryOther,
}

// Valid reports whether c is part of the fixed category set.
func (c TicketCategory) Valid() bool {
	for _, candidate := range AllCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// MaxEscalationLevel caps Escalation.Level.
const MaxEscalationLevel = 3

// Title and description bounds, in characters.
const (
	MinTitleLength       = 5
	MaxTitleLength       = 200
	MinDescriptionLength = 10
	MaxDescriptionLength = 5000
)

// SLATarget tracks one service-level commitment.
type SLATarget struct {
	TargetMinutes int
	Deadline      time.Time
	ActualAt      *time.Time
	Breached      bool
}

// SLA groups the response and resolution commitments. Derived only.
type SLA struct {
	Response        SLATarget
	Resolution      SLATarget
	FirstResponseAt *time.Time
}

// EscalationRecord is one append-only escalation history item.
type EscalationRecord struct {
	Level        int
	FromPriority TicketPriority
	ToPriority   TicketPriority
	FromAssignee *string
	ToAssignee   *string
	EscalatedBy  string
	EscalatedAt  time.Time
	Reason       string
	Automatic    bool
}

// Escalation is the orthogonal escalation state of a ticket.
type Escalation struct {
	Level       int
	EscalatedBy *string
	EscalatedAt *time.Time
	Reason      string
	History     []EscalationRecord
}

// Resolution holds the outcome of the ticket.
type Resolution struct {
	Description    string
	ResolvedBy     *string
	ResolvedAt     *time.Time
	ResolutionTime *time.Duration
	Rating         *int
	RatingComment  string
	RatedAt        *time.Time
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	TicketNumber string
	Title        string
	Description  string
	Category     TicketCategory
	Priority     TicketPriority
	Department   string
	Status       TicketStatus

	CreatedBy  string
	AssignedTo *string
	AssignedBy *string
	AssignedAt *time.Time

	SLA        SLA
	Escalation Escalation
	Resolution Resolution

	ClosedAt    *time.Time
	CancelledAt *time.Time
	ReopenedAt  *time.Time
	ReopenCount int

	Comments      []Comment
	Attachments   []Attachment
	StatusHistory []StatusHistoryEntry
	Metadata      map[string]string

	Deleted   bool
	DeletedAt *time.Time
	DeletedBy *string

	Version   int
	AuditHead string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEscalated derives the escalated flag from the escalation level.
func (t *Ticket) IsEscalated() bool {
	return t.Escalation.Level > 0
}

// IsAssigned reports whether the ticket has an owner.
func (t *Ticket) IsAssigned() bool {
	return t.AssignedTo != nil
}

// AssigneeIs reports whether userID currently owns the ticket.
func (t *Ticket) AssigneeIs(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// SetAssignment sets the whole assignment triple at once.
func (t *Ticket) SetAssignment(assignee, assigner string, at time.Time) {
	t.AssignedTo = &assignee
	t.AssignedBy = &assigner
	t.AssignedAt = &at
}

// ClearAssignment removes the whole assignment triple.
func (t *Ticket) ClearAssignment() {
	t.AssignedTo = nil
	t.AssignedBy = nil
	t.AssignedAt = nil
}

// AppendHistory records one status-history entry.
func (t *Ticket) AppendHistory(action HistoryAction, changedBy string, at time.Time, comment string) {
	t.StatusHistory = append(t.StatusHistory, StatusHistoryEntry{
		Status:    t.Status,
		Action:    action,
		ChangedBy: changedBy,
		ChangedAt: at,
		Comment:   comment,
	})
}

// Validate checks structural invariants that must hold after every mutation.
func (t *Ticket) Validate() error {
	if t.TicketNumber == "" {
		return fmt.Errorf("ticket number missing")
	}
	if _, _, err := ParseTicketNumber(t.TicketNumber); err != nil {
		return err
	}
	set := 0
	if t.AssignedTo != nil {
		set++
	}
	if t.AssignedBy != nil {
		set++
	}
	if t.AssignedAt != nil {
		set++
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("assignment fields must be set together")
	}
	if t.Escalation.Level < 0 || t.Escalation.Level > MaxEscalationLevel {
		return fmt.Errorf("escalation level %d out of range", t.Escalation.Level)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	return nil
}

// ViewFor returns a copy of t as a viewer sees it: internal comments are
// dropped unless the viewer is support staff.
func (t *Ticket) ViewFor(supportStaff bool) *Ticket {
	view := t.Clone()
	if view != nil {
		view.Comments = VisibleComments(t.Comments, supportStaff)
	}
	return view
}

// Clone returns a deep copy so callers can diff before/after states.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.AssignedTo = CloneString(t.AssignedTo)
	c.AssignedBy = CloneString(t.AssignedBy)
	c.AssignedAt = cloneTime(t.AssignedAt)
	c.SLA.Response.ActualAt = cloneTime(t.SLA.Response.ActualAt)
	c.SLA.Resolution.ActualAt = cloneTime(t.SLA.Resolution.ActualAt)
	c.SLA.FirstResponseAt = cloneTime(t.SLA.FirstResponseAt)
	c.Escalation.EscalatedBy = CloneString(t.Escalation.EscalatedBy)
	c.Escalation.EscalatedAt = cloneTime(t.Escalation.EscalatedAt)
	c.Escalation.History = append([]EscalationRecord(nil), t.Escalation.History...)
	c.Resolution.ResolvedBy = CloneString(t.Resolution.ResolvedBy)
	c.Resolution.ResolvedAt = cloneTime(t.Resolution.ResolvedAt)
	if t.Resolution.ResolutionTime != nil {
		d := *t.Resolution.ResolutionTime
		c.Resolution.ResolutionTime = &d
	}
	if t.Resolution.Rating != nil {
		r := *t.Resolution.Rating
		c.Resolution.Rating = &r
	}
	c.Resolution.RatedAt = cloneTime(t.Resolution.RatedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	c.ReopenedAt = cloneTime(t.ReopenedAt)
	c.Comments = append([]Comment(nil), t.Comments...)
	c.Attachments = append([]Attachment(nil), t.Attachments...)
	c.StatusHistory = append([]StatusHistoryEntry(nil), t.StatusHistory...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	c.DeletedAt = cloneTime(t.DeletedAt)
	c.DeletedBy = CloneString(t.DeletedBy)
	return &c
}

// CloneString copies an optional string.
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
