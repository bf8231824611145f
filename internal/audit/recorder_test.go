package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func baseTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:          "tk-1",
		Title:       "VPN drops",
		Description: "VPN disconnects every ten minutes",
		Category:    domain.CategoryNetwork,
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusOpen,
		Version:     1,
		CreatedAt:   t0,
	}
}

func findChange(changes []domain.FieldChange, field string) *domain.FieldChange {
	for i := range changes {
		if changes[i].Field == field {
			return &changes[i]
		}
	}
	return nil
}

func TestDiff_OnlyChangedFields(t *testing.T) {
	before := baseTicket()
	after := before.Clone()
	after.Status = domain.TicketStatusAssigned
	after.SetAssignment("tech-1", "admin-1", t0.Add(time.Minute))

	changes := Diff(before, after)
	status := findChange(changes, "status")
	require.NotNil(t, status)
	assert.Equal(t, "OPEN", *status.Before)
	assert.Equal(t, "ASSIGNED", *status.After)

	assignee := findChange(changes, "assigned_to")
	require.NotNil(t, assignee)
	assert.Nil(t, assignee.Before)
	assert.Equal(t, "tech-1", *assignee.After)

	assert.Nil(t, findChange(changes, "title"))
	assert.Nil(t, findChange(changes, "priority"))
}

func TestDiff_CreationHasNoBefore(t *testing.T) {
	changes := Diff(nil, baseTicket())
	require.NotEmpty(t, changes)
	for _, c := range changes {
		assert.Nil(t, c.Before, c.Field)
		assert.NotNil(t, c.After, c.Field)
	}
}

func TestRecord_ChainsAndVerifies(t *testing.T) {
	rec := NewRecorder()

	created := baseTicket()
	first, err := rec.Record(nil, created, domain.AuditCreate, "u-1", "", t0)
	require.NoError(t, err)
	assert.Empty(t, first.PrevHash)
	assert.Equal(t, first.Hash, created.AuditHead)

	updated := created.Clone()
	updated.Version = 2
	updated.Priority = domain.TicketPriorityHigh
	second, err := rec.Record(created, updated, domain.AuditEscalate, "tech-1", "customer waiting", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.Equal(t, 2, second.Sequence)

	entries := []domain.AuditEntry{*first, *second}
	require.NoError(t, Verify(entries))

	entries[1].Note = "edited later"
	assert.Error(t, Verify(entries))
}

func TestVerify_DetectsRemovedEntry(t *testing.T) {
	rec := NewRecorder()
	tk := baseTicket()
	var entries []domain.AuditEntry
	prev := (*domain.Ticket)(nil)
	for i := 0; i < 3; i++ {
		next := tk.Clone()
		next.Version = i + 1
		next.ReopenCount = i
		if prev != nil {
			next.AuditHead = prev.AuditHead
		}
		entry, err := rec.Record(prev, next, domain.AuditStatusChange, "u", "", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		entries = append(entries, *entry)
		prev = next
	}
	require.NoError(t, Verify(entries))
	assert.Error(t, Verify([]domain.AuditEntry{entries[0], entries[2]}))
}

func TestHash_StableAcrossTimezones(t *testing.T) {
	rec := NewRecorder()
	tk := baseTicket()
	entry, err := rec.Record(nil, tk, domain.AuditCreate, "u-1", "", t0)
	require.NoError(t, err)

	moved := *entry
	moved.Timestamp = entry.Timestamp.In(time.FixedZone("CET", 3600))
	hash, err := Hash(&moved)
	require.NoError(t, err)
	assert.Equal(t, entry.Hash, hash)
}

func TestAsOf_ReconstructsFieldValues(t *testing.T) {
	rec := NewRecorder()
	v1 := baseTicket()
	e1, err := rec.Record(nil, v1, domain.AuditCreate, "u-1", "", t0)
	require.NoError(t, err)

	v2 := v1.Clone()
	v2.Version = 2
	v2.Status = domain.TicketStatusAssigned
	v2.SetAssignment("tech-1", "admin-1", t0.Add(time.Hour))
	e2, err := rec.Record(v1, v2, domain.AuditAssign, "admin-1", "", t0.Add(time.Hour))
	require.NoError(t, err)

	entries := []domain.AuditEntry{*e2, *e1}

	early := AsOf(entries, t0.Add(30*time.Minute))
	require.NotNil(t, early["status"])
	assert.Equal(t, "OPEN", *early["status"])
	assert.Nil(t, early["assigned_to"])

	late := AsOf(entries, t0.Add(2*time.Hour))
	assert.Equal(t, "ASSIGNED", *late["status"])
	assert.Equal(t, "tech-1", *late["assigned_to"])
}
