package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// flakyUsers fails the first failures reads, then delegates.
type flakyUsers struct {
	*repository.MemoryUserStore
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	return f.MemoryUserStore.GetByID(ctx, id)
}

func newFlakyUsers(failures int32, users ...domain.User) *flakyUsers {
	f := &flakyUsers{MemoryUserStore: repository.NewMemoryUserStore(users...)}
	f.failures.Store(failures)
	return f
}

func directoryConfig(attempts, breakerFailures int) config.DirectoryConfig {
	return config.DirectoryConfig{
		RetryAttempts:        attempts,
		RetryInitialDelayMs:  1,
		RetryMaxDelayMs:      2,
		BreakerFailures:      breakerFailures,
		BreakerOpenSeconds:   60,
		BreakerHalfOpenCalls: 1,
	}
}

func TestDirectory_RetriesTransientFailures(t *testing.T) {
	users := newFlakyUsers(2, technician("tech-1", domain.CategoryEmail))
	dir := NewDirectory(users, directoryConfig(3, 5), zaptest.NewLogger(t))

	user, err := dir.GetUser(context.Background(), "tech-1")

	require.NoError(t, err)
	assert.Equal(t, "tech-1", user.ID)
	assert.Equal(t, int32(3), users.calls.Load())
}

func TestDirectory_UnknownUserIsNotRetried(t *testing.T) {
	users := newFlakyUsers(0)
	dir := NewDirectory(users, directoryConfig(3, 5), zaptest.NewLogger(t))

	_, err := dir.GetUser(context.Background(), "ghost")

	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.Equal(t, int32(1), users.calls.Load())
	assert.Equal(t, "closed", dir.BreakerState())
}

func TestDirectory_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	users := newFlakyUsers(100, admin("admin-1"))
	dir := NewDirectory(users, directoryConfig(1, 2), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := dir.GetUser(ctx, "admin-1")
		require.True(t, apperrors.IsCode(err, apperrors.CodeDependencyUnavailable), "attempt %d: %v", i, err)
	}
	require.Equal(t, int32(2), users.calls.Load())
	assert.Equal(t, "open", dir.BreakerState())

	_, err := dir.GetUser(ctx, "admin-1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDependencyUnavailable))
	assert.Equal(t, int32(2), users.calls.Load(), "open breaker short-circuits the store")
}

func TestDirectory_AdjustLoad(t *testing.T) {
	users := repository.NewMemoryUserStore(technician("tech-1"))
	dir := NewDirectory(users, directoryConfig(1, 5), zaptest.NewLogger(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, dir.AdjustLoad(ctx, "tech-1", 1, at))
	require.NoError(t, dir.AdjustLoad(ctx, "tech-1", -1, at))
	require.NoError(t, dir.AdjustLoad(ctx, "tech-1", -1, at))

	user, err := users.GetByID(ctx, "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 0, user.CurrentTickets)
	assert.Equal(t, at, *user.LastAssignedAt)

	err = dir.AdjustLoad(ctx, "ghost", 1, at)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestResolveActor(t *testing.T) {
	inactive := technician("tech-gone")
	inactive.Active = false
	h := newHarness(t, requester("req-1"), inactive)
	ctx := context.Background()

	_, err := h.svc.resolveActor(ctx, "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	_, err = h.svc.resolveActor(ctx, "ghost")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	_, err = h.svc.resolveActor(ctx, "tech-gone")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	actor, err := h.svc.resolveActor(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, actor.Role)
}
