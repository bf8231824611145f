package service

import (
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// A nil actor is the system (the escalation sweep) and passes every check.

func isAdmin(actor *domain.User) bool {
	return actor != nil && actor.Role == domain.RoleAdmin
}

func isSupportStaff(actor *domain.User) bool {
	return actor == nil || actor.Role.SupportStaff()
}

func isCreator(actor *domain.User, t *domain.Ticket) bool {
	return actor != nil && actor.ID == t.CreatedBy
}

func isAssignee(actor *domain.User, t *domain.Ticket) bool {
	return actor != nil && t.AssigneeIs(actor.ID)
}

// canView allows the requester and support staff.
func canView(actor *domain.User, t *domain.Ticket) bool {
	return actor == nil || isCreator(actor, t) || actor.Role.SupportStaff()
}

// canChangeStatus applies the per-target-status role rules.
func canChangeStatus(actor *domain.User, t *domain.Ticket, to domain.TicketStatus) bool {
	if actor == nil || isAdmin(actor) {
		return true
	}
	switch to {
	case domain.TicketStatusInProgress, domain.TicketStatusPending, domain.TicketStatusResolved:
		return isAssignee(actor, t)
	case domain.TicketStatusClosed:
		return isCreator(actor, t) || isAssignee(actor, t)
	case domain.TicketStatusCancelled, domain.TicketStatusReopened:
		return isCreator(actor, t)
	case domain.TicketStatusAssigned, domain.TicketStatusOpen:
		return actor.Role.SupportStaff()
	default:
		return false
	}
}
