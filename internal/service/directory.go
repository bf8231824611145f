package service

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Directory is the Staff Directory as seen by the ticket services. Reads are
// retried with backoff; every call goes through one circuit breaker so an
// unreachable directory fails fast instead of stalling ticket writes.
type Directory struct {
	users   repository.UserRepository
	retrier retry.Retry[any]
	breaker circuitbreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

// NewDirectory wraps users with the configured retry and breaker policy.
func NewDirectory(users repository.UserRepository, cfg config.DirectoryConfig, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	halfOpen := cfg.BreakerHalfOpenCalls
	if halfOpen <= 0 {
		halfOpen = 1
	}
	openFor := time.Duration(cfg.BreakerOpenSeconds) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	return &Directory{
		users: users,
		retrier: retry.New[any](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond,
			MaxDelay:      time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableDirectoryError,
		}),
		breaker: circuitbreaker.New[any](circuitbreaker.Config{
			MaxRequests: uint32(halfOpen), // #nosec G115 -- bounded config value
			Interval:    openFor,
			Timeout:     openFor,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures) // #nosec G115 -- bounded config value
			},
		}),
		logger: logger,
	}
}

func isRetryableDirectoryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, pgx.ErrNoRows)
}

// read runs op behind the breaker with retries. A missing row is reported as
// a nil result so lookups of unknown ids never count as directory failures.
func read[T any](ctx context.Context, d *Directory, op func(context.Context) (T, error)) (T, error) {
	var zero T
	out, err := d.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return d.retrier.Do(ctx, func(ctx context.Context) (any, error) {
			v, err := op(ctx)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return v, nil
		})
	})
	if err != nil {
		d.logger.Warn("staff directory call failed",
			zap.String("breaker", d.breaker.State().String()),
			zap.Error(err))
		return zero, apperrors.NewDependencyUnavailable("staff directory", err)
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

// GetUser returns the directory record for id.
func (d *Directory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := read(ctx, d, func(ctx context.Context) (*domain.User, error) {
		return d.users.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
	}
	return user, nil
}

// ListSupportStaff returns active technicians and admins.
func (d *Directory) ListSupportStaff(ctx context.Context) ([]domain.User, error) {
	staff, err := read(ctx, d, func(ctx context.Context) ([]domain.User, error) {
		return d.users.ListSupportStaff(ctx)
	})
	if err != nil {
		return nil, err
	}
	return staff, nil
}

// AdjustLoad changes a user's active-ticket count. It is not retried: a
// timed-out increment may already have landed.
func (d *Directory) AdjustLoad(ctx context.Context, id string, delta int, at time.Time) error {
	_, err := d.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, d.users.AdjustLoad(ctx, id, delta, at)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"user_id": id})
		}
		return apperrors.NewDependencyUnavailable("staff directory", err)
	}
	return nil
}

// BreakerState reports "closed", "half-open" or "open".
func (d *Directory) BreakerState() string {
	return d.breaker.State().String()
}
