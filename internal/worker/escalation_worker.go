package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// Sweeper runs one escalation sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// EscalationWorker runs the breach sweep on a fixed interval.
type EscalationWorker struct {
	sweeper  Sweeper
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEscalationWorker creates a worker. A nil clock uses the real one.
func NewEscalationWorker(sweeper Sweeper, clk clock.Clock, interval time.Duration, logger *zap.Logger) *EscalationWorker {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationWorker{sweeper: sweeper, clock: clk, interval: interval, logger: logger}
}

// Start sweeps once immediately and then on every tick until Stop or ctx
// cancellation. Calling Start on a running worker does nothing.
func (w *EscalationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	ticker := w.clock.NewTicker(w.interval)

	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		w.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}(w.done)

	w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *EscalationWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("escalation worker stopped")
}

func (w *EscalationWorker) runOnce(ctx context.Context) {
	result, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	if result.Escalated > 0 || len(result.Errors) > 0 {
		w.logger.Info("escalation sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("escalated", result.Escalated),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration))
	}
}
