package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints open to every authenticated caller.
// Role and ownership rules are enforced by the ticket service.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

func principal(c *fiber.Ctx) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p, nil
}

// parseBody decodes an optional JSON body.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

// CreateTicket POST /api/v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), p.UserID, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Department:  req.Department,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket, nil)})
}

// ListTickets GET /api/v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), p.UserID, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"), p.UserID)
	if err != nil {
		return err
	}
	standing := slaStanding(h.service.SLAStatus(ticket))
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, &standing)})
}

// GetSLA GET /api/v1/tickets/:id/sla.
func (h *TicketsHandler) GetSLA(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"sla":      slaResponse(ticket.SLA),
		"standing": slaStanding(h.service.SLAStatus(ticket)),
	}})
}

// ChangeStatus POST /api/v1/tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), c.Params("id"), req.Status, p.UserID, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, nil)})
}

// Resolve POST /api/v1/tickets/:id/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Resolve(c.UserContext(), c.Params("id"), p.UserID, req.Resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, nil)})
}

// Close POST /api/v1/tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	return withReason(c, h.service.Close)
}

// Cancel POST /api/v1/tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	return withReason(c, h.service.Cancel)
}

// Reopen POST /api/v1/tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	return withReason(c, h.service.Reopen)
}

type reasonOp func(ctx context.Context, ticketID, actorID, reason string) (*domain.Ticket, error)

func withReason(c *fiber.Ctx, op reasonOp) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := op(c.UserContext(), c.Params("id"), p.UserID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, nil)})
}

// AddComment POST /api/v1/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.UserContext(), c.Params("id"), p.UserID, req.Content, req.Internal)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// AddAttachment POST /api/v1/tickets/:id/attachments.
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.AttachmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	att, err := h.service.AddAttachment(c.UserContext(), c.Params("id"), p.UserID, service.AttachmentInput{
		Name:       req.Name,
		StorageRef: req.StorageRef,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(att)})
}

// AddRating POST /api/v1/tickets/:id/rating.
func (h *TicketsHandler) AddRating(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.AddRating(c.UserContext(), c.Params("id"), p.UserID, req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, nil)})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.TicketCategory(strings.TrimSpace(part)))
		}
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		filter.AssignedTo = &assignee
	}
	if creator := c.Query("created_by"); creator != "" {
		filter.CreatedBy = &creator
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Title:        ticket.Title,
		Category:     ticket.Category,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		Department:   ticket.Department,
		CreatedBy:    ticket.CreatedBy,
		AssignedTo:   ticket.AssignedTo,
		IsEscalated:  ticket.IsEscalated(),
		Version:      ticket.Version,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, standing *dto.SLAStandingResponse) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(ticket.Comments))
	for i := range ticket.Comments {
		comments = append(comments, commentResponse(&ticket.Comments[i]))
	}
	attachments := make([]dto.AttachmentResponse, 0, len(ticket.Attachments))
	for i := range ticket.Attachments {
		attachments = append(attachments, attachmentResponse(&ticket.Attachments[i]))
	}
	history := make([]dto.HistoryResponse, 0, len(ticket.StatusHistory))
	for _, entry := range ticket.StatusHistory {
		history = append(history, dto.HistoryResponse{
			Status:    entry.Status,
			Action:    entry.Action,
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
			Comment:   entry.Comment,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Description:   ticket.Description,
		AssignedBy:    ticket.AssignedBy,
		AssignedAt:    ticket.AssignedAt,
		SLA:           slaResponse(ticket.SLA),
		Escalation:    escalationResponse(ticket.Escalation),
		Resolution:    resolutionResponse(ticket.Resolution),
		ClosedAt:      ticket.ClosedAt,
		CancelledAt:   ticket.CancelledAt,
		ReopenedAt:    ticket.ReopenedAt,
		ReopenCount:   ticket.ReopenCount,
		Metadata:      ticket.Metadata,
		Comments:      comments,
		Attachments:   attachments,
		StatusHistory: history,
		Standing:      standing,
	}
}

func slaTarget(target domain.SLATarget) dto.SLATargetResponse {
	return dto.SLATargetResponse{
		TargetMinutes: target.TargetMinutes,
		Deadline:      target.Deadline,
		ActualAt:      target.ActualAt,
		Breached:      target.Breached,
	}
}

func slaResponse(sla domain.SLA) dto.SLAResponse {
	return dto.SLAResponse{
		Response:        slaTarget(sla.Response),
		Resolution:      slaTarget(sla.Resolution),
		FirstResponseAt: sla.FirstResponseAt,
	}
}

func slaStanding(view service.SLAView) dto.SLAStandingResponse {
	return dto.SLAStandingResponse{
		Status:     string(view.Status),
		Response:   string(view.Response),
		Resolution: string(view.Resolution),
		Urgency:    view.Urgency,
	}
}

func escalationResponse(e domain.Escalation) dto.EscalationResponse {
	records := make([]dto.EscalationRecordResponse, 0, len(e.History))
	for _, r := range e.History {
		records = append(records, dto.EscalationRecordResponse{
			Level:        r.Level,
			FromPriority: r.FromPriority,
			ToPriority:   r.ToPriority,
			FromAssignee: r.FromAssignee,
			ToAssignee:   r.ToAssignee,
			EscalatedBy:  r.EscalatedBy,
			EscalatedAt:  r.EscalatedAt,
			Reason:       r.Reason,
			Automatic:    r.Automatic,
		})
	}
	return dto.EscalationResponse{
		Level:       e.Level,
		EscalatedBy: e.EscalatedBy,
		EscalatedAt: e.EscalatedAt,
		Reason:      e.Reason,
		History:     records,
	}
}

func resolutionResponse(r domain.Resolution) dto.ResolutionResponse {
	resp := dto.ResolutionResponse{
		Description:   r.Description,
		ResolvedBy:    r.ResolvedBy,
		ResolvedAt:    r.ResolvedAt,
		Rating:        r.Rating,
		RatingComment: r.RatingComment,
		RatedAt:       r.RatedAt,
	}
	if r.ResolutionTime != nil {
		minutes := int64(r.ResolutionTime.Minutes())
		resp.ResolutionTimeMinutes = &minutes
	}
	return resp
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:        comment.ID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		Internal:  comment.Internal,
		System:    comment.System,
		CreatedAt: comment.CreatedAt,
	}
}

func attachmentResponse(att *domain.Attachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:         att.ID,
		Name:       att.Name,
		StorageRef: att.StorageRef,
		MimeType:   att.MimeType,
		SizeBytes:  att.SizeBytes,
		UploadedBy: att.UploadedBy,
		UploadedAt: att.UploadedAt,
	}
}
