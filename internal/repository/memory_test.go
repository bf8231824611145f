package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var now = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func storedTicket(id, number string) *domain.Ticket {
	return &domain.Ticket{
		ID:           id,
		TicketNumber: number,
		Title:        "Cannot print",
		Description:  "Printer queue stuck on floor 3",
		Category:     domain.CategoryPrinter,
		Priority:     domain.TicketPriorityLow,
		Status:       domain.TicketStatusOpen,
		CreatedBy:    "req-1",
		Version:      1,
		SLA: domain.SLA{
			Response:   domain.SLATarget{Deadline: now.Add(time.Hour)},
			Resolution: domain.SLATarget{Deadline: now.Add(24 * time.Hour)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryTicketStore_CreateRejectsDuplicateNumber(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, storedTicket("a", "TKT-20260210-0001"), nil))
	err := s.Create(ctx, storedTicket("b", "TKT-20260210-0001"), nil)
	assert.ErrorIs(t, err, ErrDuplicateTicketNumber)
}

func TestMemoryTicketStore_UpdateChecksVersion(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	tk := storedTicket("a", "TKT-20260210-0001")
	require.NoError(t, s.Create(ctx, tk, nil))

	stale := tk.Clone()
	tk.Version = 2
	tk.Status = domain.TicketStatusCancelled
	require.NoError(t, s.Update(ctx, tk, &domain.AuditEntry{TicketID: "a", Sequence: 2}))

	stale.Version = 2
	assert.ErrorIs(t, s.Update(ctx, stale, nil), ErrVersionConflict)

	missing := storedTicket("zzz", "TKT-20260210-0009")
	missing.Version = 2
	assert.ErrorIs(t, s.Update(ctx, missing, nil), pgx.ErrNoRows)

	entries, err := s.ListByTicket(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryTicketStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, storedTicket("a", "TKT-20260210-0001"), nil))

	got, err := s.GetByID(ctx, "a")
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := s.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Cannot print", again.Title)
}

func TestMemoryTicketStore_FailNextWrite(t *testing.T) {
	s := NewMemoryTicketStore()
	boom := errors.New("disk full")
	s.FailNextWrite(boom)
	assert.ErrorIs(t, s.Create(context.Background(), storedTicket("a", "TKT-20260210-0001"), nil), boom)
	assert.NoError(t, s.Create(context.Background(), storedTicket("a", "TKT-20260210-0001"), nil))
}

func TestMemoryTicketStore_ListFilters(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	a := storedTicket("a", "TKT-20260210-0001")
	b := storedTicket("b", "TKT-20260210-0002")
	b.Priority = domain.TicketPriorityHigh
	b.SetAssignment("tech-1", "admin", now)
	c := storedTicket("c", "TKT-20260210-0003")
	c.Deleted = true
	for _, tk := range []*domain.Ticket{a, b, c} {
		require.NoError(t, s.Create(ctx, tk, nil))
	}

	all, err := s.List(ctx, TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assignee := "tech-1"
	mine, err := s.List(ctx, TicketFilter{AssignedTo: &assignee})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b", mine[0].ID)

	high, err := s.List(ctx, TicketFilter{Priorities: []domain.TicketPriority{domain.TicketPriorityHigh}})
	require.NoError(t, err)
	assert.Len(t, high, 1)

	withDeleted, err := s.List(ctx, TicketFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)
}

func TestMemoryTicketStore_ListSweepCandidates(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()

	overdue := storedTicket("late", "TKT-20260210-0001")
	answered := storedTicket("answered", "TKT-20260210-0002")
	replied := now.Add(time.Minute)
	answered.SLA.FirstResponseAt = &replied
	capped := storedTicket("capped", "TKT-20260210-0003")
	capped.Escalation.Level = domain.MaxEscalationLevel
	resolved := storedTicket("resolved", "TKT-20260210-0004")
	resolved.Status = domain.TicketStatusResolved
	for _, tk := range []*domain.Ticket{overdue, answered, capped, resolved} {
		require.NoError(t, s.Create(ctx, tk, nil))
	}

	got, err := s.ListSweepCandidates(ctx, now.Add(2*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].ID)
}

func TestMemoryUserStore_AdjustLoadNeverNegative(t *testing.T) {
	s := NewMemoryUserStore(domain.User{ID: "tech-1", Role: domain.RoleTechnician, Active: true})
	ctx := context.Background()

	require.NoError(t, s.AdjustLoad(ctx, "tech-1", 1, now))
	require.NoError(t, s.AdjustLoad(ctx, "tech-1", -1, now.Add(time.Hour)))
	require.NoError(t, s.AdjustLoad(ctx, "tech-1", -1, now.Add(time.Hour)))

	u, err := s.GetByID(ctx, "tech-1")
	require.NoError(t, err)
	assert.Zero(t, u.CurrentTickets)
	require.NotNil(t, u.LastAssignedAt)
	assert.Equal(t, now, *u.LastAssignedAt)

	assert.ErrorIs(t, s.AdjustLoad(ctx, "nobody", 1, now), pgx.ErrNoRows)
}

func TestMemoryUserStore_ListSupportStaff(t *testing.T) {
	s := NewMemoryUserStore(
		domain.User{ID: "s1", Role: domain.RoleStudent, Active: true},
		domain.User{ID: "t1", Role: domain.RoleTechnician, Active: true},
		domain.User{ID: "t2", Role: domain.RoleTechnician, Active: false},
		domain.User{ID: "a1", Role: domain.RoleAdmin, Active: true},
	)
	staff, err := s.ListSupportStaff(context.Background())
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "a1", staff[0].ID)
	assert.Equal(t, "t1", staff[1].ID)
}

func TestMemorySequenceStore_ConcurrentGapless(t *testing.T) {
	s := NewMemorySequenceStore()
	const n = 500
	seen := make([]bool, n+1)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Next(context.Background(), "20260210")
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}

	next, err := s.Next(context.Background(), "20260211")
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}
