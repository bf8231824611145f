package domain

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// LifecycleContext is the machine's extended state. The workflow has no
// guards; permission checks live in the service layer.
type LifecycleContext struct{}

// Machine states. SEED is synthetic: its events place a fresh interpreter on
// the ticket's current status before the requested move is replayed.
const (
	seedState       statekit.StateID = "SEED"
	stateOpen       statekit.StateID = statekit.StateID(TicketStatusOpen)
	stateAssigned   statekit.StateID = statekit.StateID(TicketStatusAssigned)
	stateInProgress statekit.StateID = statekit.StateID(TicketStatusInProgress)
	statePending    statekit.StateID = statekit.StateID(TicketStatusPending)
	stateResolved   statekit.StateID = statekit.StateID(TicketStatusResolved)
	stateClosed     statekit.StateID = statekit.StateID(TicketStatusClosed)
	stateReopened   statekit.StateID = statekit.StateID(TicketStatusReopened)
	stateCancelled  statekit.StateID = statekit.StateID(TicketStatusCancelled)
)

// transitionGraph mirrors the machine for listing allowed moves.
var transitionGraph = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusAssigned, TicketStatusCancelled},
	TicketStatusAssigned:   {TicketStatusInProgress, TicketStatusPending, TicketStatusCancelled},
	TicketStatusInProgress: {TicketStatusPending, TicketStatusResolved, TicketStatusCancelled},
	TicketStatusPending:    {TicketStatusInProgress, TicketStatusResolved, TicketStatusCancelled},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusReopened},
	TicketStatusClosed:     {TicketStatusReopened},
	TicketStatusReopened:   {TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress, TicketStatusCancelled},
	TicketStatusCancelled:  nil,
}

func moveEvent(status TicketStatus) statekit.EventType {
	return statekit.EventType("TO_" + string(status))
}

func seedEvent(status TicketStatus) statekit.EventType {
	return statekit.EventType("SEED_" + string(status))
}

// Lifecycle validates status changes against the ticket workflow.
type Lifecycle struct {
	newInterpreter func() *statekit.Interpreter[LifecycleContext]
}

// NewLifecycle builds the workflow machine once. Each check runs on its own
// interpreter so a Lifecycle is safe for concurrent use.
func NewLifecycle() (*Lifecycle, error) {
	machine, err := statekit.NewMachine[LifecycleContext]("ticket-lifecycle").
		WithInitial(seedState).
		State(seedState).
		On(seedEvent(TicketStatusOpen)).Target(stateOpen).
		On(seedEvent(TicketStatusAssigned)).Target(stateAssigned).
		On(seedEvent(TicketStatusInProgress)).Target(stateInProgress).
		On(seedEvent(TicketStatusPending)).Target(statePending).
		On(seedEvent(TicketStatusResolved)).Target(stateResolved).
		On(seedEvent(TicketStatusClosed)).Target(stateClosed).
		On(seedEvent(TicketStatusReopened)).Target(stateReopened).
		On(seedEvent(TicketStatusCancelled)).Target(stateCancelled).
		Done().
		State(stateOpen).
		On(moveEvent(TicketStatusAssigned)).Target(stateAssigned).
		On(moveEvent(TicketStatusCancelled)).Target(stateCancelled).
		Done().
		State(stateAssigned).
		On(moveEvent(TicketStatusInProgress)).Target(stateInProgress).
		On(moveEvent(TicketStatusPending)).Target(statePending).
		On(moveEvent(TicketStatusCancelled)).Target(stateCancelled).
		Done().
		State(stateInProgress).
		On(moveEvent(TicketStatusPending)).Target(statePending).
		On(moveEvent(TicketStatusResolved)).Target(stateResolved).
		On(moveEvent(TicketStatusCancelled)).Target(stateCancelled).
		Done().
		State(statePending).
		On(moveEvent(TicketStatusInProgress)).Target(stateInProgress).
		On(moveEvent(TicketStatusResolved)).Target(stateResolved).
		On(moveEvent(TicketStatusCancelled)).Target(stateCancelled).
		Done().
		State(stateResolved).
		On(moveEvent(TicketStatusClosed)).Target(stateClosed).
		On(moveEvent(TicketStatusReopened)).Target(stateReopened).
		Done().
		State(stateClosed).
		On(moveEvent(TicketStatusReopened)).Target(stateReopened).
		Done().
		State(stateReopened).
		On(moveEvent(TicketStatusOpen)).Target(stateOpen).
		On(moveEvent(TicketStatusAssigned)).Target(stateAssigned).
		On(moveEvent(TicketStatusInProgress)).Target(stateInProgress).
		On(moveEvent(TicketStatusCancelled)).Target(stateCancelled).
		Done().
		// Cancelled is terminal
		State(stateCancelled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build ticket lifecycle: %w", err)
	}
	return &Lifecycle{
		newInterpreter: func() *statekit.Interpreter[LifecycleContext] {
			return statekit.NewInterpreter(machine)
		},
	}, nil
}

// CanTransition reports whether the workflow allows from -> to.
func (l *Lifecycle) CanTransition(from, to TicketStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	interp := l.newInterpreter()
	interp.Start()
	interp.Send(statekit.Event{Type: seedEvent(from)})
	if interp.State().Value != statekit.StateID(from) {
		return false
	}
	interp.Send(statekit.Event{Type: moveEvent(to)})
	return interp.State().Value == statekit.StateID(to)
}

// AllowedTransitions lists the statuses reachable from s in one step.
func AllowedTransitions(s TicketStatus) []TicketStatus {
	return append([]TicketStatus(nil), transitionGraph[s]...)
}
