package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

const (
	defaultSweepConcurrency = 8
	defaultSweepBudget      = 30 * time.Second
	defaultSweepBatch       = 500
)

// SweepError records one ticket the sweep could not process.
type SweepError struct {
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
}

// SweepResult summarizes one escalation sweep.
type SweepResult struct {
	Scanned   int           `json:"scanned"`
	Escalated int           `json:"escalated"`
	Skipped   int           `json:"skipped"`
	Errors    []SweepError  `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// EscalationService finds tickets past their SLA deadlines and escalates them.
type EscalationService struct {
	tickets     repository.TicketRepository
	ticketSvc   *TicketService
	inFlight    *locks.Registry
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	budget      time.Duration
	batch       int
}

// EscalationDependencies bundles collaborators for the sweep.
type EscalationDependencies struct {
	TicketRepo    repository.TicketRepository
	TicketService *TicketService
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Config        config.EscalationConfig
	// Locks guards tickets against overlapping sweeps. It may be the registry
	// the ticket service uses; sweep keys are namespaced.
	Locks *locks.Registry
	// BatchSize caps candidates per sweep; zero uses the default.
	BatchSize int
}

// NewEscalationService creates the service. Locks is required.
func NewEscalationService(deps EscalationDependencies) (*EscalationService, error) {
	if deps.Locks == nil {
		return nil, ErrLocksRequired
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := deps.Config.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	budget := deps.Config.Budget()
	if budget <= 0 {
		budget = defaultSweepBudget
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &EscalationService{
		tickets:     deps.TicketRepo,
		ticketSvc:   deps.TicketService,
		inFlight:    deps.Locks,
		clock:       clk,
		logger:      logger,
		metrics:     deps.Metrics,
		concurrency: concurrency,
		budget:      budget,
		batch:       batch,
	}, nil
}

// RunEscalationSweep escalates every ticket overdue at now. Per-ticket
// failures are collected, not returned; the error is non-nil only when the
// candidate list cannot be read.
func (e *EscalationService) RunEscalationSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	started := e.clock.Now()
	sweepCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	candidates, err := e.tickets.ListSweepCandidates(sweepCtx, now, e.batch)
	if err != nil {
		e.logger.Error("escalation sweep failed to list candidates", zap.Error(err))
		return SweepResult{}, e.ticketSvc.mapError(err, "failed to list sweep candidates")
	}

	var (
		mu     sync.Mutex
		result = SweepResult{Scanned: len(candidates), Errors: []SweepError{}}
	)
	record := func(fn func(r *SweepResult)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}

	limiter := semaphore.NewWeighted(int64(e.concurrency))
	g, gCtx := errgroup.WithContext(sweepCtx)
	for i := range candidates {
		ticketID := candidates[i].ID
		g.Go(func() error {
			if err := limiter.Acquire(gCtx, 1); err != nil {
				record(func(r *SweepResult) { r.Skipped++ })
				return nil
			}
			defer limiter.Release(1)

			key := "sweep:" + ticketID
			if !e.inFlight.TryLock(key) {
				record(func(r *SweepResult) { r.Skipped++ })
				return nil
			}
			defer e.inFlight.Unlock(key)

			escalated, err := e.ticketSvc.escalateOverdue(gCtx, ticketID, now)
			switch {
			case err != nil:
				e.logger.Warn("failed to escalate ticket", zap.String("ticket_id", ticketID), zap.Error(err))
				record(func(r *SweepResult) {
					r.Errors = append(r.Errors, SweepError{TicketID: ticketID, Message: err.Error()})
				})
			case escalated:
				record(func(r *SweepResult) { r.Escalated++ })
			default:
				record(func(r *SweepResult) { r.Skipped++ })
			}
			// Don't return the error - other tickets keep going
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = e.clock.Now().Sub(started)
	e.metrics.RecordSweep(result.Duration, result.Escalated, len(result.Errors))
	e.logger.Info("escalation sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Sweep runs a sweep at the clock's current instant.
func (e *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	return e.RunEscalationSweep(ctx, e.clock.Now())
}
