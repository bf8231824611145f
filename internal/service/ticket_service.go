package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// DefaultSystemActor identifies automatic changes in history and audit.
const DefaultSystemActor = "system"

// MaxRating is the top of the satisfaction scale; the bottom is 1.
const MaxRating = 5

// ErrLocksRequired is returned by the constructors when no lock registry is
// injected. The registry is shared so the owner can Close it on shutdown.
var ErrLocksRequired = errors.New("service: lock registry is required")

// TicketService coordinates ticket workflows. Every mutation of a ticket goes
// through it.
type TicketService struct {
	tickets    repository.TicketRepository
	audits     repository.AuditRepository
	sequence   repository.SequenceStore
	directory  *Directory
	assignment *AssignmentService
	calculator *sla.Calculator
	lifecycle  *domain.Lifecycle
	recorder   *audit.Recorder
	locks      *locks.Registry
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics

	systemActor        string
	recomputeDeadlines bool
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	AuditRepo    repository.AuditRepository
	SequenceRepo repository.SequenceStore
	Directory    *Directory
	Assignment   *AssignmentService
	Calculator   *sla.Calculator
	Lifecycle    *domain.Lifecycle
	Recorder     *audit.Recorder
	Locks        *locks.Registry
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
	Logger       *zap.Logger
	Metrics      *observability.Metrics

	SystemActorID string
	// RecomputeDeadlines restarts SLA deadlines from the escalation instant
	// using the bumped priority.
	RecomputeDeadlines bool
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	Department  string
	Metadata    map[string]string
}

// AttachmentInput describes an uploaded file already placed in storage.
type AttachmentInput struct {
	Name       string
	StorageRef string
	MimeType   string
	SizeBytes  int64
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	CreatedBy  *string
	AssignedTo *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	SearchTerm *string
	Limit      int
	Offset     int
}

// SLAView is the live SLA standing of a ticket.
type SLAView struct {
	Status     sla.Status `json:"status"`
	Response   sla.Status `json:"response"`
	Resolution sla.Status `json:"resolution"`
	Urgency    int        `json:"urgency"`
}

// AuditVerification reports the outcome of checking a ticket's hash chain.
type AuditVerification struct {
	Entries int    `json:"entries"`
	Valid   bool   `json:"valid"`
	Problem string `json:"problem,omitempty"`
}

// NewTicketService constructs the service. Locks is required; Lifecycle,
// Recorder, Clock, Calculator and Logger fall back to defaults when unset.
func NewTicketService(deps TicketDependencies) (*TicketService, error) {
	if deps.Locks == nil {
		return nil, ErrLocksRequired
	}
	lifecycle := deps.Lifecycle
	if lifecycle == nil {
		var err error
		lifecycle, err = domain.NewLifecycle()
		if err != nil {
			return nil, err
		}
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = audit.NewRecorder()
	}
	calculator := deps.Calculator
	if calculator == nil {
		calculator = sla.NewCalculator(nil, clk)
	}
	assignment := deps.Assignment
	if assignment == nil {
		assignment = NewAssignmentService(deps.Directory, logger)
	}
	systemActor := deps.SystemActorID
	if systemActor == "" {
		systemActor = DefaultSystemActor
	}
	return &TicketService{
		tickets:            deps.TicketRepo,
		audits:             deps.AuditRepo,
		sequence:           deps.SequenceRepo,
		directory:          deps.Directory,
		assignment:         assignment,
		calculator:         calculator,
		lifecycle:          lifecycle,
		recorder:           recorder,
		locks:              deps.Locks,
		dispatcher:         deps.Dispatcher,
		clock:              clk,
		logger:             logger,
		metrics:            deps.Metrics,
		systemActor:        systemActor,
		recomputeDeadlines: deps.RecomputeDeadlines,
	}, nil
}

// CreateTicket creates a ticket for a user and tries to hand it to the best
// available technician.
func (s *TicketService) CreateTicket(ctx context.Context, actorID string, input TicketCreateInput) (*domain.Ticket, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	deadlines, err := s.calculator.Deadlines(input.Priority, now)
	if err != nil {
		return nil, s.mapError(err, "failed to compute SLA deadlines")
	}
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Priority:    input.Priority,
		Department:  strings.TrimSpace(input.Department),
		Status:      domain.TicketStatusOpen,
		CreatedBy:   actor.ID,
		SLA:         deadlines,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(input.Metadata) > 0 {
		ticket.Metadata = make(map[string]string, len(input.Metadata))
		for k, v := range input.Metadata {
			ticket.Metadata[k] = v
		}
	}
	ticket.AppendHistory(domain.ActionCreated, actor.ID, now, "")

	c := &change{actor: actor, actorID: actor.ID, now: now}
	c.emit(events.EventTicketCreated, nil)
	s.autoAssign(ctx, ticket, c)

	for attempt := 0; ; attempt++ {
		seq, err := s.sequence.Next(ctx, domain.TicketDay(now))
		if err != nil {
			s.compensate(ctx, c)
			return nil, s.mapError(err, "failed to allocate ticket number")
		}
		ticket.TicketNumber = domain.FormatTicketNumber(now, seq)
		entry, err := s.recorder.Record(nil, ticket, domain.AuditCreate, actor.ID, "", now)
		if err != nil {
			s.compensate(ctx, c)
			return nil, s.mapError(err, "failed to build audit entry")
		}
		err = s.tickets.Create(ctx, ticket, entry)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateTicketNumber) && attempt == 0 {
			s.logger.Warn("ticket number taken, regenerating", zap.String("ticket_number", ticket.TicketNumber))
			continue
		}
		s.compensate(ctx, c)
		if errors.Is(err, repository.ErrDuplicateTicketNumber) {
			return nil, apperrors.NewConflict("ticket number already exists", map[string]any{"ticket_number": ticket.TicketNumber})
		}
		return nil, s.mapError(err, "failed to create ticket")
	}

	s.metrics.Inc(observability.MetricTicketsCreated)
	s.commit(ctx, ticket, c)
	return ticket, nil
}

func validateCreateInput(input *TicketCreateInput) error {
	var fields apperrors.FieldErrors
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if n := utf8.RuneCountInString(input.Title); n < domain.MinTitleLength || n > domain.MaxTitleLength {
		fields.Add("title", fmt.Sprintf("must be between %d and %d characters", domain.MinTitleLength, domain.MaxTitleLength))
	}
	if n := utf8.RuneCountInString(input.Description); n < domain.MinDescriptionLength || n > domain.MaxDescriptionLength {
		fields.Add("description", fmt.Sprintf("must be between %d and %d characters", domain.MinDescriptionLength, domain.MaxDescriptionLength))
	}
	if !input.Category.Valid() {
		fields.Add("category", fmt.Sprintf("unknown category %q", input.Category))
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	} else if !input.Priority.Valid() {
		fields.Add("priority", fmt.Sprintf("unknown priority %q", input.Priority))
	}
	return fields.Err()
}

// autoAssign is best effort: no match or an unreachable directory leaves the
// ticket open and unassigned.
func (s *TicketService) autoAssign(ctx context.Context, t *domain.Ticket, c *change) {
	criteria := MatchCriteria{Category: t.Category, Department: t.Department, Tier: TierTechnician}
	tech, err := s.assignment.Claim(ctx, criteria, c.now)
	if err != nil {
		s.logger.Warn("auto-assignment skipped", zap.String("ticket_id", t.ID), zap.Error(err))
		return
	}
	if tech == nil {
		s.logger.Info("no available technician", zap.String("ticket_id", t.ID), zap.String("category", string(t.Category)))
		return
	}
	c.claimed = append(c.claimed, tech.ID)
	s.assignTo(t, c, tech.ID, s.systemActor, true)
	t.AppendHistory(domain.ActionAssigned, s.systemActor, c.now, "auto-assigned")
}

// assignTo moves the assignment triple to assignee. The previous assignee's
// load is released; the caller accounts for the new assignee's load.
func (s *TicketService) assignTo(t *domain.Ticket, c *change, assignee, assigner string, automatic bool) {
	previous := domain.CloneString(t.AssignedTo)
	if previous != nil && t.Status.Active() {
		c.release = append(c.release, *previous)
	}
	t.SetAssignment(assignee, assigner, c.now)
	if (t.Status == domain.TicketStatusOpen || t.Status == domain.TicketStatusReopened) &&
		s.lifecycle.CanTransition(t.Status, domain.TicketStatusAssigned) {
		from := t.Status
		t.Status = domain.TicketStatusAssigned
		c.emit(events.EventTicketStatusChanged, events.TicketStatusChangedPayload{OldStatus: from, NewStatus: t.Status})
	}
	c.emit(events.EventTicketAssigned, events.TicketAssignedPayload{
		PreviousAssignee: previous,
		Assignee:         assignee,
		Automatic:        automatic,
	})
}

// AssignTicket hands a ticket to a technician or admin.
func (s *TicketService) AssignTicket(ctx context.Context, ticketID, technicianID, actorID string) (*domain.Ticket, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.SupportStaff() {
		return nil, apperrors.NewForbidden("only technicians and admins can assign tickets")
	}
	tech, err := s.directory.GetUser(ctx, technicianID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
		}
		return nil, err
	}
	if !tech.Active || !tech.Role.SupportStaff() {
		return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
	}

	return s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditAssign, func(t *domain.Ticket, c *change) error {
		if t.AssigneeIs(tech.ID) {
			return errNoChange
		}
		if !t.Status.Active() {
			return fieldError("status", fmt.Sprintf("ticket in status %s cannot be assigned", t.Status))
		}
		s.assignTo(t, c, tech.ID, actor.ID, false)
		c.acquire = append(c.acquire, tech.ID)
		t.AppendHistory(domain.ActionAssigned, actor.ID, c.now, "")
		return nil
	})
}

// ChangeStatus moves a ticket along the workflow.
func (s *TicketService) ChangeStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actorID, comment string) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, fieldError("status", fmt.Sprintf("unknown status %q", newStatus))
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	action := domain.AuditStatusChange
	if newStatus == domain.TicketStatusReopened {
		action = domain.AuditReopen
	}
	comment = strings.TrimSpace(comment)
	return s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), action, func(t *domain.Ticket, c *change) error {
		c.note = comment
		return s.transition(t, c, newStatus, comment)
	})
}

// transition validates and applies one status change with its side effects,
// appending exactly one status-history entry.
func (s *TicketService) transition(t *domain.Ticket, c *change, to domain.TicketStatus, comment string) error {
	from := t.Status
	if !s.lifecycle.CanTransition(from, to) {
		return fieldError("status", fmt.Sprintf("cannot move from %s to %s", from, to))
	}
	if !canChangeStatus(c.actor, t, to) {
		return apperrors.NewForbidden(fmt.Sprintf("not permitted to move ticket to %s", to))
	}

	now := c.now
	switch to {
	case domain.TicketStatusAssigned:
		if !t.IsAssigned() {
			return fieldError("assigned_to", "ticket has no assignee")
		}
	case domain.TicketStatusOpen:
		if t.IsAssigned() {
			c.release = append(c.release, *t.AssignedTo)
			t.ClearAssignment()
		}
	case domain.TicketStatusResolved:
		markResolved(t, c.actorID, now)
	case domain.TicketStatusClosed:
		t.ClosedAt = &now
		t.Escalation.Level = 0
	case domain.TicketStatusReopened:
		t.ClosedAt = nil
		t.ReopenCount++
		t.ReopenedAt = &now
		t.Escalation.Level = 0
	case domain.TicketStatusCancelled:
		t.CancelledAt = &now
	}

	if t.IsAssigned() {
		switch {
		case from.Active() && !to.Active():
			c.release = append(c.release, *t.AssignedTo)
		case !from.Active() && to.Active():
			c.acquire = append(c.acquire, *t.AssignedTo)
		}
	}

	t.Status = to
	action := domain.ActionStatusChanged
	if to == domain.TicketStatusReopened {
		action = domain.ActionReopened
	}
	t.AppendHistory(action, c.actorID, now, comment)
	c.emit(events.EventTicketStatusChanged, events.TicketStatusChangedPayload{OldStatus: from, NewStatus: to, Comment: comment})
	switch to {
	case domain.TicketStatusResolved:
		c.emit(events.EventTicketResolved, nil)
	case domain.TicketStatusReopened:
		c.emit(events.EventTicketReopened, nil)
	}
	return nil
}

// markResolved stamps the first resolution only; later resolutions after a
// reopen keep the original instant and duration.
func markResolved(t *domain.Ticket, actorID string, now time.Time) {
	if t.Resolution.ResolvedAt != nil {
		return
	}
	at := now
	by := actorID
	elapsed := now.Sub(t.CreatedAt)
	t.Resolution.ResolvedAt = &at
	t.Resolution.ResolvedBy = &by
	t.Resolution.ResolutionTime = &elapsed
	actual := now
	t.SLA.Resolution.ActualAt = &actual
}

// Resolve marks the ticket resolved with a required resolution description.
func (s *TicketService) Resolve(ctx context.Context, ticketID, actorID, resolution string) (*domain.Ticket, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, fieldError("resolution", "resolution description is required")
	}
	if utf8.RuneCountInString(resolution) > domain.MaxDescriptionLength {
		return nil, fieldError("resolution", fmt.Sprintf("must be at most %d characters", domain.MaxDescriptionLength))
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditStatusChange, func(t *domain.Ticket, c *change) error {
		if err := s.transition(t, c, domain.TicketStatusResolved, resolution); err != nil {
			return err
		}
		t.Resolution.Description = resolution
		c.note = stringPreview(resolution, 120)
		return nil
	})
}

// Close closes a resolved ticket.
func (s *TicketService) Close(ctx context.Context, ticketID, actorID, note string) (*domain.Ticket, error) {
	return s.ChangeStatus(ctx, ticketID, domain.TicketStatusClosed, actorID, note)
}

// Cancel withdraws a ticket that is still being worked.
func (s *TicketService) Cancel(ctx context.Context, ticketID, actorID, reason string) (*domain.Ticket, error) {
	return s.ChangeStatus(ctx, ticketID, domain.TicketStatusCancelled, actorID, reason)
}

// Reopen returns a resolved or closed ticket to the queue and records the
// reason as a system comment.
func (s *TicketService) Reopen(ctx context.Context, ticketID, actorID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > domain.MaxCommentLength {
		return nil, fieldError("reason", fmt.Sprintf("must be at most %d characters", domain.MaxCommentLength))
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditReopen, func(t *domain.Ticket, c *change) error {
		if err := s.transition(t, c, domain.TicketStatusReopened, reason); err != nil {
			return err
		}
		content := "Ticket reopened"
		if reason != "" {
			content += ": " + reason
		}
		t.Comments = append(t.Comments, domain.Comment{
			ID:        uuid.NewString(),
			AuthorID:  actor.ID,
			Content:   content,
			System:    true,
			CreatedAt: c.now,
			UpdatedAt: c.now,
		})
		c.note = reason
		return nil
	})
}

// AddComment appends a comment to the ticket thread. The first public reply
// from support staff is the ticket's first response.
func (s *TicketService) AddComment(ctx context.Context, ticketID, actorID, content string, internal bool) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < domain.MinCommentLength || n > domain.MaxCommentLength {
		return nil, fieldError("content", fmt.Sprintf("must be between %d and %d characters", domain.MinCommentLength, domain.MaxCommentLength))
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var created domain.Comment
	_, err = s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditComment, func(t *domain.Ticket, c *change) error {
		if !canView(actor, t) {
			return apperrors.NewForbidden("access denied")
		}
		if internal && !actor.Role.SupportStaff() {
			return apperrors.NewForbidden("only support staff can post internal comments")
		}
		created = domain.Comment{
			ID:        uuid.NewString(),
			AuthorID:  actor.ID,
			Content:   content,
			Internal:  internal,
			CreatedAt: c.now,
			UpdatedAt: c.now,
		}
		t.Comments = append(t.Comments, created)
		if actor.Role.SupportStaff() && !internal && t.SLA.FirstResponseAt == nil {
			first := c.now
			actual := c.now
			t.SLA.FirstResponseAt = &first
			t.SLA.Response.ActualAt = &actual
		}
		c.note = stringPreview(content, 120)
		c.emit(events.EventTicketCommented, events.TicketCommentedPayload{
			CommentID:   created.ID,
			AuthorID:    actor.ID,
			Internal:    internal,
			BodyPreview: stringPreview(content, 120),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Escalate raises the escalation level on behalf of a technician or admin.
func (s *TicketService) Escalate(ctx context.Context, ticketID, actorID, reason string) (*domain.Ticket, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.SupportStaff() {
		return nil, apperrors.NewForbidden("only technicians and admins can escalate tickets")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual escalation"
	}
	return s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditEscalate, func(t *domain.Ticket, c *change) error {
		return s.escalate(ctx, t, c, reason, false)
	})
}

// escalateOverdue re-checks the breach condition under the ticket lock and
// escalates when it still holds. It reports whether the ticket escalated.
func (s *TicketService) escalateOverdue(ctx context.Context, ticketID string, now time.Time) (bool, error) {
	escalated := false
	_, err := s.mutate(ctx, ticketID, nil, s.systemActor, now, domain.AuditEscalate, func(t *domain.Ticket, c *change) error {
		if !t.Status.Active() || t.Escalation.Level >= domain.MaxEscalationLevel || !sla.Overdue(t, now) {
			return errNoChange
		}
		if !s.recomputeDeadlines && t.Escalation.EscalatedAt != nil && !t.UpdatedAt.After(*t.Escalation.EscalatedAt) {
			return errNoChange
		}
		if err := s.escalate(ctx, t, c, overdueReason(t, now), true); err != nil {
			return err
		}
		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return escalated, nil
}

func overdueReason(t *domain.Ticket, now time.Time) string {
	if now.After(t.SLA.Resolution.Deadline) {
		return "resolution SLA breached"
	}
	return "response SLA breached"
}

// escalate raises the level by one, bumps priority, optionally restarts the
// deadlines and re-targets the ticket.
func (s *TicketService) escalate(ctx context.Context, t *domain.Ticket, c *change, reason string, automatic bool) error {
	if !t.Status.Active() {
		return fieldError("status", fmt.Sprintf("ticket in status %s cannot be escalated", t.Status))
	}
	if t.Escalation.Level >= domain.MaxEscalationLevel {
		return fieldError("escalation.level", "ticket is already at the highest escalation level")
	}
	// Breaches that caused the escalation are latched before deadlines move.
	s.latchBreaches(t, c)

	fromPriority := t.Priority
	fromAssignee := domain.CloneString(t.AssignedTo)
	t.Escalation.Level++
	t.Priority = t.Priority.Bump()
	if s.recomputeDeadlines {
		if err := s.calculator.Recompute(t, c.now); err != nil {
			return s.mapError(err, "failed to recompute SLA deadlines")
		}
	}

	exclude := ""
	if t.AssignedTo != nil {
		exclude = *t.AssignedTo
	}
	target, err := s.assignment.Claim(ctx, escalationCriteria(t.Escalation.Level, t.Category, t.Department, exclude), c.now)
	switch {
	case err != nil:
		s.logger.Warn("escalation re-targeting skipped", zap.String("ticket_id", t.ID), zap.Error(err))
	case target == nil:
		s.logger.Info("no escalation target, keeping assignee",
			zap.String("ticket_id", t.ID),
			zap.Int("level", t.Escalation.Level))
	default:
		c.claimed = append(c.claimed, target.ID)
		s.assignTo(t, c, target.ID, c.actorID, automatic)
	}

	at := c.now
	by := c.actorID
	t.Escalation.EscalatedAt = &at
	t.Escalation.EscalatedBy = &by
	t.Escalation.Reason = reason
	t.Escalation.History = append(t.Escalation.History, domain.EscalationRecord{
		Level:        t.Escalation.Level,
		FromPriority: fromPriority,
		ToPriority:   t.Priority,
		FromAssignee: fromAssignee,
		ToAssignee:   domain.CloneString(t.AssignedTo),
		EscalatedBy:  by,
		EscalatedAt:  at,
		Reason:       reason,
		Automatic:    automatic,
	})
	t.AppendHistory(domain.ActionEscalated, c.actorID, c.now, reason)
	c.note = reason
	c.emit(events.EventTicketEscalated, events.TicketEscalatedPayload{
		Level:        t.Escalation.Level,
		FromPriority: fromPriority,
		ToPriority:   t.Priority,
		Reason:       reason,
		Automatic:    automatic,
	})
	return nil
}

// AddRating records the requester's satisfaction with a resolved ticket.
func (s *TicketService) AddRating(ctx context.Context, ticketID, actorID string, rating int, comment string) (*domain.Ticket, error) {
	if rating < 1 || rating > MaxRating {
		return nil, fieldError("rating", fmt.Sprintf("must be between 1 and %d", MaxRating))
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > domain.MaxCommentLength {
		return nil, fieldError("comment", fmt.Sprintf("must be at most %d characters", domain.MaxCommentLength))
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditRate, func(t *domain.Ticket, c *change) error {
		if !isCreator(actor, t) {
			return apperrors.NewForbidden("only the requester can rate a ticket")
		}
		if t.Status != domain.TicketStatusResolved {
			return fieldError("status", "only resolved tickets can be rated")
		}
		if t.Resolution.Rating != nil {
			return fieldError("rating", "ticket has already been rated")
		}
		value := rating
		at := c.now
		t.Resolution.Rating = &value
		t.Resolution.RatingComment = comment
		t.Resolution.RatedAt = &at
		c.emit(events.EventTicketRated, events.TicketRatedPayload{Rating: rating})
		return nil
	})
}

// AddAttachment records metadata for a file already placed in storage.
func (s *TicketService) AddAttachment(ctx context.Context, ticketID, actorID string, input AttachmentInput) (*domain.Attachment, error) {
	var fields apperrors.FieldErrors
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || utf8.RuneCountInString(input.Name) > 255 {
		fields.Add("name", "must be between 1 and 255 characters")
	}
	if strings.TrimSpace(input.StorageRef) == "" {
		fields.Add("storage_ref", "is required")
	}
	if input.SizeBytes <= 0 || input.SizeBytes > domain.MaxAttachmentBytes {
		fields.Add("size_bytes", fmt.Sprintf("must be between 1 and %d bytes", domain.MaxAttachmentBytes))
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var created domain.Attachment
	_, err = s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditAttach, func(t *domain.Ticket, c *change) error {
		if !canView(actor, t) {
			return apperrors.NewForbidden("access denied")
		}
		created = domain.Attachment{
			ID:         uuid.NewString(),
			Name:       input.Name,
			StorageRef: input.StorageRef,
			MimeType:   input.MimeType,
			SizeBytes:  input.SizeBytes,
			UploadedBy: actor.ID,
			UploadedAt: c.now,
		}
		t.Attachments = append(t.Attachments, created)
		c.note = input.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// SoftDelete hides a ticket from reads and sweeps; its audit trail remains.
func (s *TicketService) SoftDelete(ctx context.Context, ticketID, actorID string) error {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return err
	}
	if !isAdmin(actor) {
		return apperrors.NewForbidden("only admins can delete tickets")
	}
	_, err = s.mutate(ctx, ticketID, actor, actor.ID, s.clock.Now(), domain.AuditDelete, func(t *domain.Ticket, c *change) error {
		at := c.now
		by := actor.ID
		t.Deleted = true
		t.DeletedAt = &at
		t.DeletedBy = &by
		if t.IsAssigned() && t.Status.Active() {
			c.release = append(c.release, *t.AssignedTo)
		}
		c.emit(events.EventTicketDeleted, nil)
		return nil
	})
	return err
}

// GetTicket returns a ticket as the viewer may see it.
func (s *TicketService) GetTicket(ctx context.Context, ticketID, viewerID string) (*domain.Ticket, error) {
	viewer, err := s.resolveActor(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(viewer, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	ticket.Comments = domain.VisibleComments(ticket.Comments, viewer.Role.SupportStaff())
	return ticket, nil
}

// ListTickets returns tickets visible to the viewer. Requesters only see
// their own.
func (s *TicketService) ListTickets(ctx context.Context, viewerID string, filter TicketListFilter) ([]domain.Ticket, error) {
	viewer, err := s.resolveActor(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	repoFilter := repository.TicketFilter{
		CreatedBy:  filter.CreatedBy,
		AssignedTo: filter.AssignedTo,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Categories: filter.Categories,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if repoFilter.Limit <= 0 || repoFilter.Limit > 200 {
		repoFilter.Limit = 50
	}
	if !viewer.Role.SupportStaff() {
		repoFilter.CreatedBy = &viewer.ID
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, s.mapError(err, "failed to list tickets")
	}
	for i := range tickets {
		tickets[i].Comments = domain.VisibleComments(tickets[i].Comments, viewer.Role.SupportStaff())
	}
	return tickets, nil
}

// ListAudit returns a ticket's audit trail, oldest first. Support staff only.
func (s *TicketService) ListAudit(ctx context.Context, ticketID, viewerID string) ([]domain.AuditEntry, error) {
	viewer, err := s.resolveActor(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !viewer.Role.SupportStaff() {
		return nil, apperrors.NewForbidden("only support staff can read the audit trail")
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, s.mapError(err, "failed to load ticket")
	}
	entries, err := s.audits.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, s.mapError(err, "failed to list audit entries")
	}
	return entries, nil
}

// VerifyAudit checks the ticket's audit hash chain.
func (s *TicketService) VerifyAudit(ctx context.Context, ticketID, viewerID string) (AuditVerification, error) {
	entries, err := s.ListAudit(ctx, ticketID, viewerID)
	if err != nil {
		return AuditVerification{}, err
	}
	result := AuditVerification{Entries: len(entries), Valid: true}
	if err := audit.Verify(entries); err != nil {
		result.Valid = false
		result.Problem = err.Error()
		s.logger.Error("audit chain verification failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	return result, nil
}

// AuditAsOf reconstructs the audited field values of a ticket at an instant.
func (s *TicketService) AuditAsOf(ctx context.Context, ticketID, viewerID string, at time.Time) (map[string]*string, error) {
	entries, err := s.ListAudit(ctx, ticketID, viewerID)
	if err != nil {
		return nil, err
	}
	return audit.AsOf(entries, at), nil
}

// SLAStatus reports the live SLA standing of t.
func (s *TicketService) SLAStatus(t *domain.Ticket) SLAView {
	now := s.clock.Now()
	return SLAView{
		Status:     s.calculator.Status(t, now),
		Response:   s.calculator.TargetStatus(t.SLA.Response, t.SLA.FirstResponseAt, now),
		Resolution: s.calculator.TargetStatus(t.SLA.Resolution, t.Resolution.ResolvedAt, now),
		Urgency:    sla.UrgencyScore(t, now),
	}
}

// resolveActor looks up the acting user in the Staff Directory.
func (s *TicketService) resolveActor(ctx context.Context, actorID string) (*domain.User, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	user, err := s.directory.GetUser(ctx, actorID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewUnauthorized("unknown user")
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperrors.NewForbidden("user is inactive")
	}
	return user, nil
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
