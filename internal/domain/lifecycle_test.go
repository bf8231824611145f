package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_CanTransition_MatchesGraph(t *testing.T) {
	lc, err := NewLifecycle()
	require.NoError(t, err)

	for _, from := range AllStatuses {
		allowed := map[TicketStatus]bool{}
		for _, to := range AllowedTransitions(from) {
			allowed[to] = true
		}
		for _, to := range AllStatuses {
			assert.Equal(t, allowed[to], lc.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestLifecycle_RejectsUnknownAndSelfTransitions(t *testing.T) {
	lc, err := NewLifecycle()
	require.NoError(t, err)

	assert.False(t, lc.CanTransition(TicketStatusOpen, TicketStatusOpen))
	assert.False(t, lc.CanTransition(TicketStatusOpen, TicketStatus("ESCALATED")))
	assert.False(t, lc.CanTransition(TicketStatus("BOGUS"), TicketStatusAssigned))
}

func TestLifecycle_KeyEdges(t *testing.T) {
	lc, err := NewLifecycle()
	require.NoError(t, err)

	assert.True(t, lc.CanTransition(TicketStatusResolved, TicketStatusClosed))
	assert.True(t, lc.CanTransition(TicketStatusClosed, TicketStatusReopened))
	assert.True(t, lc.CanTransition(TicketStatusReopened, TicketStatusInProgress))
	assert.False(t, lc.CanTransition(TicketStatusOpen, TicketStatusResolved))
	assert.False(t, lc.CanTransition(TicketStatusClosed, TicketStatusOpen))
	for _, to := range AllStatuses {
		assert.False(t, lc.CanTransition(TicketStatusCancelled, to))
	}
}

func TestLifecycle_ConcurrentChecks(t *testing.T) {
	lc, err := NewLifecycle()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, lc.CanTransition(TicketStatusInProgress, TicketStatusResolved))
			assert.False(t, lc.CanTransition(TicketStatusResolved, TicketStatusInProgress))
		}()
	}
	wg.Wait()
}
