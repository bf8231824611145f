package sla

import (
	"math"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Status summarises where a ticket stands against its commitments.
type Status string

const (
	StatusOnTrack  Status = "ON_TRACK"
	StatusAtRisk   Status = "AT_RISK"
	StatusBreached Status = "BREACHED"
	StatusMet      Status = "MET"
)

// Calculator computes deadlines and evaluates breaches. Every comparison is
// made between UTC instants.
type Calculator struct {
	policy *Policy
	clock  clock.Clock
}

// NewCalculator wires a calculator to its policy table and time source.
func NewCalculator(policy *Policy, clk clock.Clock) *Calculator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Calculator{policy: policy, clock: clk}
}

// Policy exposes the active table.
func (c *Calculator) Policy() *Policy {
	return c.policy
}

// Now returns the calculator's notion of the current instant.
func (c *Calculator) Now() time.Time {
	return c.clock.Now()
}

// Deadlines builds a fresh SLA block for priority starting at from. The
// first-response latch is left untouched by callers that recompute.
func (c *Calculator) Deadlines(priority domain.TicketPriority, from time.Time) (domain.SLA, error) {
	targets, err := c.policy.For(priority)
	if err != nil {
		return domain.SLA{}, err
	}
	from = from.UTC()
	return domain.SLA{
		Response: domain.SLATarget{
			TargetMinutes: targets.ResponseMinutes,
			Deadline:      from.Add(targets.Response()),
		},
		Resolution: domain.SLATarget{
			TargetMinutes: targets.ResolutionMinutes,
			Deadline:      from.Add(targets.Resolution()),
		},
	}, nil
}

// Recompute replaces the targets and deadlines of t from the given instant.
// First-response and actual timestamps are kept, and so are latched breach
// flags: a breach once observed stays on the ticket.
func (c *Calculator) Recompute(t *domain.Ticket, from time.Time) error {
	fresh, err := c.Deadlines(t.Priority, from)
	if err != nil {
		return err
	}
	t.SLA.Response.TargetMinutes = fresh.Response.TargetMinutes
	t.SLA.Response.Deadline = fresh.Response.Deadline
	t.SLA.Resolution.TargetMinutes = fresh.Resolution.TargetMinutes
	t.SLA.Resolution.Deadline = fresh.Resolution.Deadline
	return nil
}

func breached(target domain.SLATarget, actual *time.Time, now time.Time) bool {
	if actual != nil {
		return actual.After(target.Deadline)
	}
	return now.After(target.Deadline)
}

// ResponseBreached reports a late first response, or no response and now
// past the deadline.
func ResponseBreached(t *domain.Ticket, now time.Time) bool {
	return breached(t.SLA.Response, t.SLA.FirstResponseAt, now)
}

// ResolutionBreached is the resolution-side counterpart of ResponseBreached.
func ResolutionBreached(t *domain.Ticket, now time.Time) bool {
	return breached(t.SLA.Resolution, t.Resolution.ResolvedAt, now)
}

// Evaluate latches breach flags that are observable at now. It returns true
// when any flag changed. Flags are never cleared here.
func Evaluate(t *domain.Ticket, now time.Time) bool {
	changed := false
	if !t.SLA.Response.Breached && ResponseBreached(t, now) {
		t.SLA.Response.Breached = true
		changed = true
	}
	if !t.SLA.Resolution.Breached && ResolutionBreached(t, now) {
		t.SLA.Resolution.Breached = true
		changed = true
	}
	return changed
}

// Overdue reports whether t is a sweep candidate on time alone: past the
// resolution deadline, or unanswered past the response deadline.
func Overdue(t *domain.Ticket, now time.Time) bool {
	if now.After(t.SLA.Resolution.Deadline) {
		return true
	}
	return t.SLA.FirstResponseAt == nil && now.After(t.SLA.Response.Deadline)
}

// TargetStatus classifies one commitment. A latched breach wins over the
// current deadline, which may have moved on escalation.
func (c *Calculator) TargetStatus(target domain.SLATarget, actual *time.Time, now time.Time) Status {
	if target.Breached {
		return StatusBreached
	}
	if actual != nil {
		if actual.After(target.Deadline) {
			return StatusBreached
		}
		return StatusMet
	}
	if now.After(target.Deadline) {
		return StatusBreached
	}
	if elapsedRatio(target, now) >= c.policy.AtRiskRatio {
		return StatusAtRisk
	}
	return StatusOnTrack
}

// Status reports the worse of the response and resolution statuses.
func (c *Calculator) Status(t *domain.Ticket, now time.Time) Status {
	response := c.TargetStatus(t.SLA.Response, t.SLA.FirstResponseAt, now)
	resolution := c.TargetStatus(t.SLA.Resolution, t.Resolution.ResolvedAt, now)
	if severity(response) >= severity(resolution) {
		return response
	}
	return resolution
}

func severity(s Status) int {
	switch s {
	case StatusBreached:
		return 3
	case StatusAtRisk:
		return 2
	case StatusOnTrack:
		return 1
	default:
		return 0
	}
}

func elapsedRatio(target domain.SLATarget, now time.Time) float64 {
	total := time.Duration(target.TargetMinutes) * time.Minute
	if total <= 0 {
		return 1
	}
	start := target.Deadline.Add(-total)
	return float64(now.Sub(start)) / float64(total)
}

// UrgencyScore ranks open work for queues: higher is more urgent. Priority
// tier dominates, then escalation level, then how much of the resolution
// window has been consumed. Finished tickets score zero.
func UrgencyScore(t *domain.Ticket, now time.Time) int {
	if !t.Status.Active() {
		return 0
	}
	score := (t.Priority.Rank() + 1) * 100
	score += t.Escalation.Level * 40
	ratio := math.Max(0, math.Min(elapsedRatio(t.SLA.Resolution, now), 2))
	score += int(ratio * 50)
	if t.SLA.FirstResponseAt == nil && now.After(t.SLA.Response.Deadline) {
		score += 25
	}
	return score
}
