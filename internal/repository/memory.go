package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MemoryTicketStore implements TicketRepository and AuditRepository in
// process memory. Values are copied on the way in and out.
type MemoryTicketStore struct {
	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	numbers  map[string]string
	audit    map[string][]domain.AuditEntry
	failNext error
}

// NewMemoryTicketStore creates an empty store.
func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{
		tickets: make(map[string]*domain.Ticket),
		numbers: make(map[string]string),
		audit:   make(map[string][]domain.AuditEntry),
	}
}

// FailNextWrite makes the next Create or Update return err without storing
// anything.
func (s *MemoryTicketStore) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemoryTicketStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Create implements TicketRepository.
func (s *MemoryTicketStore) Create(_ context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.numbers[ticket.TicketNumber]; ok {
		return ErrDuplicateTicketNumber
	}
	s.tickets[ticket.ID] = ticket.Clone()
	s.numbers[ticket.TicketNumber] = ticket.ID
	s.appendAudit(entry)
	return nil
}

// Update implements TicketRepository.
func (s *MemoryTicketStore) Update(_ context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	stored, ok := s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version-1 {
		return ErrVersionConflict
	}
	s.tickets[ticket.ID] = ticket.Clone()
	s.appendAudit(entry)
	return nil
}

func (s *MemoryTicketStore) appendAudit(entry *domain.AuditEntry) {
	if entry == nil {
		return
	}
	e := *entry
	e.Changes = append([]domain.FieldChange(nil), entry.Changes...)
	s.audit[e.TicketID] = append(s.audit[e.TicketID], e)
}

// GetByID implements TicketRepository.
func (s *MemoryTicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket.Clone(), nil
}

// List implements TicketRepository.
func (s *MemoryTicketStore) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	s.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, t := range s.tickets {
		if matchesFilter(t, filter) {
			matched = append(matched, *t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func matchesFilter(t *domain.Ticket, filter TicketFilter) bool {
	if t.Deleted && !filter.IncludeDeleted {
		return false
	}
	if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
		return false
	}
	if filter.AssignedTo != nil && !t.AssigneeIs(*filter.AssignedTo) {
		return false
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, t.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !contains(filter.Priorities, t.Priority) {
		return false
	}
	if len(filter.Categories) > 0 && !contains(filter.Categories, t.Category) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// ListSweepCandidates implements TicketRepository.
func (s *MemoryTicketStore) ListSweepCandidates(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	s.mu.RLock()
	result := make([]domain.Ticket, 0)
	for _, t := range s.tickets {
		if t.Deleted || !contains(SweepStatuses, t.Status) || t.Escalation.Level >= domain.MaxEscalationLevel {
			continue
		}
		overdue := now.After(t.SLA.Resolution.Deadline) ||
			(t.SLA.FirstResponseAt == nil && now.After(t.SLA.Response.Deadline))
		if overdue {
			result = append(result, *t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].SLA.Resolution.Deadline.Before(result[j].SLA.Resolution.Deadline)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByTicket implements AuditRepository.
func (s *MemoryTicketStore) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[ticketID]
	out := make([]domain.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// MemoryUserStore implements UserRepository in process memory.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewMemoryUserStore seeds a store with users.
func NewMemoryUserStore(users ...domain.User) *MemoryUserStore {
	s := &MemoryUserStore{users: make(map[string]*domain.User)}
	for i := range users {
		u := cloneUser(&users[i])
		s.users[u.ID] = u
	}
	return s
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.SupportAreas = append([]domain.TicketCategory(nil), u.SupportAreas...)
	if u.LastAssignedAt != nil {
		at := *u.LastAssignedAt
		c.LastAssignedAt = &at
	}
	return &c
}

// Upsert implements UserRepository.
func (s *MemoryUserStore) Upsert(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID implements UserRepository.
func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneUser(u), nil
}

// ListSupportStaff implements UserRepository.
func (s *MemoryUserStore) ListSupportStaff(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.User, 0)
	for _, u := range s.users {
		if u.Active && u.Role.SupportStaff() {
			result = append(result, *cloneUser(u))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AdjustLoad implements UserRepository.
func (s *MemoryUserStore) AdjustLoad(_ context.Context, id string, delta int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.CurrentTickets += delta
	if u.CurrentTickets < 0 {
		u.CurrentTickets = 0
	}
	if delta > 0 {
		stamp := at
		u.LastAssignedAt = &stamp
	}
	return nil
}

// SetAvailability implements UserRepository.
func (s *MemoryUserStore) SetAvailability(_ context.Context, id string, availability domain.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Availability = availability
	return nil
}
