package worker

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

// EventQueue is the asynchronous dispatcher the notification handlers run on.
type EventQueue interface {
	Start()
	Close(ctx context.Context) error
}

// StartNotificationWorker registers notification handlers and starts
// delivery. The returned function drains the queue on shutdown.
func StartNotificationWorker(notificationService *service.NotificationService, queue EventQueue) func(context.Context) error {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if queue == nil {
		return func(context.Context) error { return nil }
	}
	queue.Start()
	return queue.Close
}
