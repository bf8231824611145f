package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// NotificationService turns domain events into outbound notifications.
// Delivery is best effort: failures are logged and never reach the caller
// that changed the ticket.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketCommented, n.handleTicketCommented)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketSLABreached, n.handleSLABreached)
	n.dispatcher.Subscribe(events.EventTicketResolved, n.handleTicketResolved)
	n.dispatcher.Subscribe(events.EventTicketReopened, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated",
		zap.String("ticket_id", event.TicketID),
		zap.String("ticket_number", event.Ticket.TicketNumber),
		zap.String("priority", string(event.Ticket.Priority)))
	n.sendEmailNotificationStub(ctx, event, event.Ticket.CreatedBy)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.TicketAssignedPayload); ok {
		n.sendEmailNotificationStub(ctx, event, payload.Assignee)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketCommented(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("TicketCommented", zap.String("ticket_id", event.TicketID), zap.String("comment_id", payload.CommentID))
	// Internal notes never leave the support team.
	if payload.Internal {
		return nil
	}
	if payload.AuthorID != event.Ticket.CreatedBy {
		n.sendEmailNotificationStub(ctx, event, event.Ticket.CreatedBy)
	} else if event.Ticket.AssignedTo != nil {
		n.sendEmailNotificationStub(ctx, event, *event.Ticket.AssignedTo)
	}
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	n.logger.Warn("TicketEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if event.Ticket.AssignedTo != nil {
		n.sendEmailNotificationStub(ctx, event, *event.Ticket.AssignedTo)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	n.logger.Warn("TicketSLABreached", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketResolved(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketResolved", zap.String("ticket_id", event.TicketID))
	n.sendEmailNotificationStub(ctx, event, event.Ticket.CreatedBy)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, recipientID string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || recipientID == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("recipient_id", recipientID),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
