package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// errNoChange aborts a mutation without writing and without failing.
var errNoChange = errors.New("no change")

type pendingEvent struct {
	eventType events.EventType
	payload   interface{}
}

// change collects what a mutation did besides editing the ticket. Load
// adjustments and events run only once the ticket and its audit entry are
// stored; claims already applied are undone if the write fails.
type change struct {
	actor   *domain.User
	actorID string
	now     time.Time
	note    string

	events  []pendingEvent
	claimed []string
	acquire []string
	release []string
}

func (c *change) emit(eventType events.EventType, payload interface{}) {
	c.events = append(c.events, pendingEvent{eventType: eventType, payload: payload})
}

// mutate runs apply against the current ticket under its lock, then
// versions, audits and stores the result. actor is nil for the system. The
// returned ticket is filtered for actor.
func (s *TicketService) mutate(ctx context.Context, ticketID string, actor *domain.User, actorID string, now time.Time, action domain.AuditAction, apply func(*domain.Ticket, *change) error) (*domain.Ticket, error) {
	if err := s.locks.Lock(ctx, ticketID); err != nil {
		if errors.Is(err, locks.ErrClosed) {
			return nil, apperrors.NewDependencyUnavailable("ticket locks", err)
		}
		return nil, s.mapError(err, "failed to lock ticket")
	}
	defer s.locks.Unlock(ticketID)

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	before := ticket.Clone()
	c := &change{actor: actor, actorID: actorID, now: now}
	if err := apply(ticket, c); err != nil {
		s.compensate(ctx, c)
		if errors.Is(err, errNoChange) {
			return before.ViewFor(isSupportStaff(actor)), nil
		}
		return nil, err
	}

	s.latchBreaches(ticket, c)
	ticket.Version++
	ticket.UpdatedAt = now
	if err := ticket.Validate(); err != nil {
		s.compensate(ctx, c)
		return nil, s.mapError(err, "ticket failed validation after mutation")
	}
	entry, err := s.recorder.Record(before, ticket, action, actorID, c.note, now)
	if err != nil {
		s.compensate(ctx, c)
		return nil, s.mapError(err, "failed to build audit entry")
	}
	if err := s.tickets.Update(ctx, ticket, entry); err != nil {
		s.compensate(ctx, c)
		return nil, s.mapWriteError(err, ticketID)
	}
	s.commit(ctx, ticket, c)
	return ticket.ViewFor(isSupportStaff(actor)), nil
}

// latchBreaches persists breach flags observable at the mutation instant.
func (s *TicketService) latchBreaches(t *domain.Ticket, c *change) {
	if !sla.Evaluate(t, c.now) {
		return
	}
	s.metrics.Inc(observability.MetricSLABreaches)
	c.emit(events.EventTicketSLABreached, events.TicketSLABreachedPayload{
		Response:   t.SLA.Response.Breached,
		Resolution: t.SLA.Resolution.Breached,
	})
}

func (s *TicketService) commit(ctx context.Context, t *domain.Ticket, c *change) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range c.release {
		s.assignment.Release(ctx, id, c.now)
	}
	for _, id := range c.acquire {
		s.assignment.Acquire(ctx, id, c.now)
	}
	for _, ev := range c.events {
		s.publishEvent(ctx, events.NewEvent(ev.eventType, t, c.actorID, c.now, ev.payload))
	}
}

func (s *TicketService) compensate(ctx context.Context, c *change) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range c.claimed {
		s.assignment.Release(ctx, id, c.now)
	}
	c.claimed = nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return
	}
	s.metrics.Inc(observability.MetricEventsPublished)
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, s.mapError(err, "failed to load ticket")
	}
	if ticket.Deleted {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) mapWriteError(err error, ticketID string) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	default:
		return s.mapError(err, "failed to store ticket")
	}
}

// mapError converts err to a DomainError, logging internal failures with
// the correlation id handed back to the caller.
func (s *TicketService) mapError(err error, msg string) error {
	de := apperrors.ToDomainError(err)
	if de.Code == apperrors.CodeInternal {
		s.logger.Error(msg, zap.String("correlation_id", de.CorrelationID), zap.Error(err))
	}
	return de
}

func fieldError(field, message string) error {
	return apperrors.NewFieldValidationError("validation failed", apperrors.FieldError{Field: field, Message: message})
}
