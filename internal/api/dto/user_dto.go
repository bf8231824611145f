package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserResponse describes the authenticated caller.
type UserResponse struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Email          string                  `json:"email"`
	Role           domain.Role             `json:"role"`
	Department     string                  `json:"department,omitempty"`
	SupportAreas   []domain.TicketCategory `json:"support_areas,omitempty"`
	Availability   domain.Availability     `json:"availability"`
	CurrentTickets int                     `json:"current_tickets"`
	LastAssignedAt *time.Time              `json:"last_assigned_at,omitempty"`
}
