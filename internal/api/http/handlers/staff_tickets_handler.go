package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// StaffTicketsHandler handles endpoints reserved for support staff:
// assignment, escalation, the audit trail and the breach sweep.
type StaffTicketsHandler struct {
	tickets *service.TicketService
	sweeper *service.EscalationService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService, sweeper *service.EscalationService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService, sweeper: sweeper}
}

// Assign POST /api/v1/tickets/:id/assign.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TechnicianID == "" {
		return apperrors.NewFieldValidationError("validation failed", apperrors.FieldError{Field: "technician_id", Message: "is required"})
	}
	ticket, err := h.tickets.AssignTicket(c.UserContext(), c.Params("id"), req.TechnicianID, p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, nil)})
}

// Escalate POST /api/v1/tickets/:id/escalate.
func (h *StaffTicketsHandler) Escalate(c *fiber.Ctx) error {
	return withReason(c, h.tickets.Escalate)
}

// Delete DELETE /api/v1/tickets/:id.
func (h *StaffTicketsHandler) Delete(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.tickets.SoftDelete(c.UserContext(), c.Params("id"), p.UserID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListAudit GET /api/v1/tickets/:id/audit.
func (h *StaffTicketsHandler) ListAudit(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.ListAudit(c.UserContext(), c.Params("id"), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries})
}

// VerifyAudit GET /api/v1/tickets/:id/audit/verify.
func (h *StaffTicketsHandler) VerifyAudit(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	report, err := h.tickets.VerifyAudit(c.UserContext(), c.Params("id"), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// AuditAsOf GET /api/v1/tickets/:id/audit/as-of?at=RFC3339.
func (h *StaffTicketsHandler) AuditAsOf(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	at, err := time.Parse(time.RFC3339, c.Query("at"))
	if err != nil {
		return apperrors.NewFieldValidationError("validation failed", apperrors.FieldError{Field: "at", Message: "must be an RFC3339 timestamp"})
	}
	fields, err := h.tickets.AuditAsOf(c.UserContext(), c.Params("id"), p.UserID, at)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"at": at, "fields": fields}})
}

// Sweep POST /api/v1/escalations/sweep runs one breach sweep now.
func (h *StaffTicketsHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.sweeper.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"scanned":     result.Scanned,
		"escalated":   result.Escalated,
		"skipped":     result.Skipped,
		"errors":      result.Errors,
		"duration_ms": result.Duration.Milliseconds(),
	}})
}
