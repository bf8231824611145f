package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the async dispatcher drops an event.
var ErrQueueFull = errors.New("event queue full")

// ErrDispatcherClosed is returned for events published after shutdown.
var ErrDispatcherClosed = errors.New("event dispatcher closed")

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// handlerSet is the subscription table shared by both dispatchers.
type handlerSet struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{listeners: make(map[EventType][]EventHandler)}
}

func (h *handlerSet) subscribe(eventType EventType, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[eventType] = append(h.listeners[eventType], handler)
}

// deliver invokes every handler for the event, logging failures and
// continuing with the rest.
func (h *handlerSet) deliver(ctx context.Context, logger *zap.Logger, event Event) {
	h.mu.RLock()
	handlers := append([]EventHandler{}, h.listeners[event.Type]...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	handlers *handlerSet
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that runs handlers inline.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{handlers: newHandlerSet(), logger: logger}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.handlers.deliver(ctx, d.logger, event)
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.handlers.subscribe(eventType, handler)
}

// AsyncDispatcher queues events and delivers them on background workers.
// Publish never blocks: when the queue is full the event is dropped and
// logged.
type AsyncDispatcher struct {
	handlers *handlerSet
	logger   *zap.Logger
	queue    chan Event
	workers  int

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	onDrop func(Event)
}

// NewAsyncDispatcher creates a dispatcher with a bounded queue. Start must be
// called before events are delivered.
func NewAsyncDispatcher(logger *zap.Logger, queueSize, workers int) *AsyncDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &AsyncDispatcher{
		handlers: newHandlerSet(),
		logger:   logger,
		queue:    make(chan Event, queueSize),
		workers:  workers,
	}
}

// OnDrop registers a callback invoked for every dropped event.
func (d *AsyncDispatcher) OnDrop(fn func(Event)) {
	d.onDrop = fn
}

// Subscribe registers a handler for the given event type.
func (d *AsyncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.handlers.subscribe(eventType, handler)
}

// Start launches the delivery workers. It is a no-op after the first call.
func (d *AsyncDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.handlers.deliver(context.Background(), d.logger, event)
	}
}

// Publish enqueues the event without waiting for delivery.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("dropping event, queue full",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		if d.onDrop != nil {
			d.onDrop(event)
		}
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
