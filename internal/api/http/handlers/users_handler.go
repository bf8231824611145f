package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
)

// UsersHandler exposes the caller's own directory record.
type UsersHandler struct{}

// NewUsersHandler constructs handler.
func NewUsersHandler() *UsersHandler {
	return &UsersHandler{}
}

// Me handles GET /api/v1/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	u := p.User
	return c.JSON(fiber.Map{"data": dto.UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		Department:     u.Department,
		SupportAreas:   u.SupportAreas,
		Availability:   u.Availability,
		CurrentTickets: u.CurrentTickets,
		LastAssignedAt: u.LastAssignedAt,
	}})
}
