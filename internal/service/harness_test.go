package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// eventLog is a Dispatcher that records what was published.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, event events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) Subscribe(events.EventType, events.EventHandler) {}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func (l *eventLog) ofType(eventType events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type harnessConfig struct {
	logger    *zap.Logger
	recompute bool
	sequence  repository.SequenceStore
	users     []domain.User
}

type harness struct {
	clock   *clock.FakeClock
	tickets *repository.MemoryTicketStore
	users   *repository.MemoryUserStore
	events  *eventLog
	metrics *observability.Metrics
	locks   *locks.Registry
	svc     *TicketService
	sweeper *EscalationService
}

func newHarness(t *testing.T, users ...domain.User) *harness {
	t.Helper()
	return build(t, harnessConfig{logger: zaptest.NewLogger(t), recompute: true, users: users})
}

func build(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.Fake(baseTime),
		tickets: repository.NewMemoryTicketStore(),
		users:   repository.NewMemoryUserStore(cfg.users...),
		events:  &eventLog{},
		metrics: observability.NewMetrics(),
		locks:   locks.NewRegistry(),
	}
	t.Cleanup(h.locks.Close)
	sequence := cfg.sequence
	if sequence == nil {
		sequence = repository.NewMemorySequenceStore()
	}
	directory := NewDirectory(h.users, config.DirectoryConfig{
		RetryAttempts:        2,
		RetryInitialDelayMs:  1,
		RetryMaxDelayMs:      2,
		BreakerFailures:      50,
		BreakerOpenSeconds:   60,
		BreakerHalfOpenCalls: 1,
	}, cfg.logger)

	svc, err := NewTicketService(TicketDependencies{
		TicketRepo:         h.tickets,
		AuditRepo:          h.tickets,
		SequenceRepo:       sequence,
		Directory:          directory,
		Dispatcher:         h.events,
		Clock:              h.clock,
		Logger:             cfg.logger,
		Metrics:            h.metrics,
		Locks:              h.locks,
		RecomputeDeadlines: cfg.recompute,
	})
	require.NoError(t, err)
	h.svc = svc
	h.sweeper, err = NewEscalationService(EscalationDependencies{
		TicketRepo:    h.tickets,
		TicketService: svc,
		Clock:         h.clock,
		Logger:        cfg.logger,
		Metrics:       h.metrics,
		Config:        config.EscalationConfig{Concurrency: 4, BudgetSeconds: 10},
		Locks:         h.locks,
	})
	require.NoError(t, err)
	return h
}

func requester(id string) domain.User {
	return domain.User{ID: id, Name: id, Role: domain.RoleStudent, Availability: domain.AvailabilityAvailable, Active: true}
}

func technician(id string, areas ...domain.TicketCategory) domain.User {
	return domain.User{
		ID:           id,
		Name:         id,
		Role:         domain.RoleTechnician,
		SupportAreas: areas,
		Availability: domain.AvailabilityAvailable,
		Active:       true,
	}
}

func admin(id string) domain.User {
	return domain.User{ID: id, Name: id, Role: domain.RoleAdmin, Availability: domain.AvailabilityAvailable, Active: true}
}

func validInput(priority domain.TicketPriority) TicketCreateInput {
	return TicketCreateInput{
		Title:       "Laptop will not boot",
		Description: "Power light blinks amber three times, then nothing.",
		Category:    domain.CategoryHardware,
		Priority:    priority,
	}
}

func (h *harness) create(t *testing.T, actorID string, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.CreateTicket(context.Background(), actorID, validInput(priority))
	require.NoError(t, err)
	return ticket
}

func (h *harness) stored(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (h *harness) load(t *testing.T, userID string) int {
	t.Helper()
	user, err := h.users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return user.CurrentTickets
}

func (h *harness) auditCount(t *testing.T, ticketID string) int {
	t.Helper()
	entries, err := h.tickets.ListByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	return len(entries)
}
