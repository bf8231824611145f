package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var created = time.Date(2026, 3, 8, 1, 30, 0, 0, time.UTC)

func newTicket(t *testing.T, c *Calculator, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	block, err := c.Deadlines(priority, created)
	require.NoError(t, err)
	return &domain.Ticket{
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		SLA:       block,
		CreatedAt: created,
	}
}

func TestDeadlines_MatchTargetsForEveryPriority(t *testing.T) {
	c := NewCalculator(DefaultPolicy(), clock.Fake(created))
	for _, priority := range domain.PriorityLadder {
		targets, err := c.Policy().For(priority)
		require.NoError(t, err)

		block, err := c.Deadlines(priority, created)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(targets.ResolutionMinutes)*time.Minute, block.Resolution.Deadline.Sub(created), priority)
		assert.Equal(t, time.Duration(targets.ResponseMinutes)*time.Minute, block.Response.Deadline.Sub(created), priority)
	}
}

func TestDeadlines_NormalisesToUTC(t *testing.T) {
	c := NewCalculator(nil, clock.Fake(created))
	local := created.In(time.FixedZone("EST", -5*3600))
	block, err := c.Deadlines(domain.TicketPriorityCritical, local)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, block.Response.Deadline.Location())
	assert.True(t, block.Response.Deadline.Equal(created.Add(30*time.Minute)))
}

func TestDeadlines_UnknownPriority(t *testing.T) {
	c := NewCalculator(nil, nil)
	_, err := c.Deadlines(domain.TicketPriority("URGENT"), created)
	assert.Error(t, err)
}

func TestResponseBreached(t *testing.T) {
	c := NewCalculator(nil, nil)
	tk := newTicket(t, c, domain.TicketPriorityCritical)
	deadline := tk.SLA.Response.Deadline

	assert.False(t, ResponseBreached(tk, deadline))
	assert.True(t, ResponseBreached(tk, deadline.Add(time.Second)))

	onTime := deadline.Add(-time.Minute)
	tk.SLA.FirstResponseAt = &onTime
	assert.False(t, ResponseBreached(tk, deadline.Add(time.Hour)))

	late := deadline.Add(time.Minute)
	tk.SLA.FirstResponseAt = &late
	assert.True(t, ResponseBreached(tk, deadline))
}

func TestEvaluate_LatchesOnlyObservedBreaches(t *testing.T) {
	c := NewCalculator(nil, nil)
	tk := newTicket(t, c, domain.TicketPriorityHigh)

	assert.False(t, Evaluate(tk, created.Add(time.Hour)))
	assert.False(t, tk.SLA.Response.Breached)

	assert.True(t, Evaluate(tk, created.Add(3*time.Hour)))
	assert.True(t, tk.SLA.Response.Breached)
	assert.False(t, tk.SLA.Resolution.Breached)

	assert.False(t, Evaluate(tk, created.Add(3*time.Hour)), "already latched")
}

func TestOverdue(t *testing.T) {
	c := NewCalculator(nil, nil)
	tk := newTicket(t, c, domain.TicketPriorityCritical)

	assert.False(t, Overdue(tk, created.Add(30*time.Minute)))
	assert.True(t, Overdue(tk, created.Add(31*time.Minute)))

	answered := created.Add(10 * time.Minute)
	tk.SLA.FirstResponseAt = &answered
	assert.False(t, Overdue(tk, created.Add(31*time.Minute)))
	assert.True(t, Overdue(tk, created.Add(241*time.Minute)))
}

func TestStatus(t *testing.T) {
	c := NewCalculator(nil, nil)
	tk := newTicket(t, c, domain.TicketPriorityCritical)

	assert.Equal(t, StatusOnTrack, c.Status(tk, created.Add(5*time.Minute)))
	// 24 of 30 response minutes elapsed.
	assert.Equal(t, StatusAtRisk, c.Status(tk, created.Add(24*time.Minute)))
	assert.Equal(t, StatusBreached, c.Status(tk, created.Add(31*time.Minute)))

	answered := created.Add(5 * time.Minute)
	resolved := created.Add(60 * time.Minute)
	tk.SLA.FirstResponseAt = &answered
	tk.Resolution.ResolvedAt = &resolved
	assert.Equal(t, StatusMet, c.Status(tk, created.Add(10*time.Hour)))
}

func TestUrgencyScore_Ordering(t *testing.T) {
	c := NewCalculator(nil, nil)
	low := newTicket(t, c, domain.TicketPriorityLow)
	crit := newTicket(t, c, domain.TicketPriorityCritical)
	now := created.Add(10 * time.Minute)

	assert.Greater(t, UrgencyScore(crit, now), UrgencyScore(low, now))

	escalated := newTicket(t, c, domain.TicketPriorityLow)
	escalated.Escalation.Level = 2
	assert.Greater(t, UrgencyScore(escalated, now), UrgencyScore(low, now))

	low.Status = domain.TicketStatusClosed
	assert.Zero(t, UrgencyScore(low, now))
}

func TestRecompute_KeepsLatches(t *testing.T) {
	c := NewCalculator(nil, nil)
	tk := newTicket(t, c, domain.TicketPriorityLow)
	answered := created.Add(time.Minute)
	tk.SLA.FirstResponseAt = &answered
	tk.SLA.Resolution.Breached = true

	tk.Priority = domain.TicketPriorityHigh
	at := created.Add(24 * time.Hour)
	require.NoError(t, c.Recompute(tk, at))

	assert.Equal(t, at.Add(1440*time.Minute), tk.SLA.Resolution.Deadline)
	assert.Equal(t, 1440, tk.SLA.Resolution.TargetMinutes)
	assert.True(t, tk.SLA.Resolution.Breached)
	assert.False(t, tk.SLA.Response.Breached)
	assert.Equal(t, &answered, tk.SLA.FirstResponseAt)
}

func TestTargetStatus_LatchedBreachOutlivesMovedDeadline(t *testing.T) {
	c := NewCalculator(nil, nil)
	tk := newTicket(t, c, domain.TicketPriorityCritical)
	require.True(t, Evaluate(tk, created.Add(241*time.Minute)))

	tk.Priority = domain.TicketPriorityCritical
	require.NoError(t, c.Recompute(tk, created.Add(241*time.Minute)))
	resolved := created.Add(250 * time.Minute)
	tk.Resolution.ResolvedAt = &resolved

	assert.True(t, resolved.Before(tk.SLA.Resolution.Deadline))
	assert.Equal(t, StatusBreached, c.TargetStatus(tk.SLA.Resolution, tk.Resolution.ResolvedAt, resolved))
	assert.Equal(t, StatusBreached, c.Status(tk, resolved))
}
