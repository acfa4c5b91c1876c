package events

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// anyEvent keys wildcard subscriptions in the subscriber map
const anyEvent EventType = "*"

// subscription represents a single event subscription
type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	// Subscriber management
	subscribers map[EventType][]subscription
	mu          sync.RWMutex

	// Event queue
	eventQueue chan Event
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	inflight   sync.WaitGroup

	// Subscription ID generator
	nextSubID SubscriptionID

	// Diagnostics for dropped events and handler panics
	diag   func(format string, args ...interface{})
	diagMu sync.RWMutex
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *DefaultEventBus {
	bus := &DefaultEventBus{
		subscribers: make(map[EventType][]subscription),
		eventQueue:  make(chan Event, bufferSize),
		stopCh:      make(chan struct{}),
		nextSubID:   1,
		diag: func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, "[EventBus] "+format+"\n", args...)
		},
	}

	// Start event processor
	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// SetDiagnostics replaces the sink for dropped-event and panic reports
func (eb *DefaultEventBus) SetDiagnostics(fn func(format string, args ...interface{})) {
	eb.diagMu.Lock()
	defer eb.diagMu.Unlock()
	eb.diag = fn
}

func (eb *DefaultEventBus) report(format string, args ...interface{}) {
	eb.diagMu.RLock()
	fn := eb.diag
	eb.diagMu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// Subscribe registers a handler for a specific event type
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subID := eb.nextSubID
	eb.nextSubID++

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{
		id:      subID,
		handler: handler,
	})

	return subID
}

// SubscribeAll registers a handler for every event type
func (eb *DefaultEventBus) SubscribeAll(handler EventHandler) SubscriptionID {
	return eb.Subscribe(anyEvent, handler)
}

// Unsubscribe removes a subscription by ID
func (eb *DefaultEventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				remaining := make([]subscription, 0, len(subs)-1)
				remaining = append(remaining, subs[:i]...)
				remaining = append(remaining, subs[i+1:]...)
				eb.subscribers[eventType] = remaining
				return
			}
		}
	}
}

// Publish sends an event to all subscribers (blocking until queued)
func (eb *DefaultEventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-eb.stopCh:
		eb.report("Dropped event (bus stopped): %v", event.Type)
		return
	default:
	}

	select {
	case eb.eventQueue <- event:
	case <-eb.stopCh:
		eb.report("Dropped event (bus stopped): %v", event.Type)
	}
}

// PublishAsync sends an event asynchronously (non-blocking)
func (eb *DefaultEventBus) PublishAsync(event Event) {
	go eb.Publish(event)
}

// Stop stops the event bus, drains remaining events and waits for running
// handlers. Safe to call more than once, but not from inside a handler.
func (eb *DefaultEventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.stopCh)
	})
	eb.wg.Wait()
	eb.inflight.Wait()
}

// processEvents runs in a goroutine and dispatches events to handlers
func (eb *DefaultEventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventQueue:
			eb.dispatch(event)

		case <-eb.stopCh:
			// Drain remaining events before stopping
			for {
				select {
				case event := <-eb.eventQueue:
					eb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

// dispatch sends an event to typed and wildcard handlers
func (eb *DefaultEventBus) dispatch(event Event) {
	eb.mu.RLock()
	typed := eb.subscribers[event.Type]
	wildcard := eb.subscribers[anyEvent]
	if len(typed)+len(wildcard) == 0 {
		eb.mu.RUnlock()
		return
	}

	handlers := make([]EventHandler, 0, len(typed)+len(wildcard))
	for _, sub := range typed {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range wildcard {
		handlers = append(handlers, sub.handler)
	}
	eb.mu.RUnlock()

	eb.inflight.Add(len(handlers))
	for _, handler := range handlers {
		go func(h EventHandler) {
			defer eb.inflight.Done()
			eb.safeHandlerCall(h, event)
		}(handler)
	}
}

// safeHandlerCall calls a handler with panic recovery
func (eb *DefaultEventBus) safeHandlerCall(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.report("Handler panic for event %v: %v", event.Type, r)
		}
	}()

	handler(event)
}

// GetSubscriberCount returns the number of subscribers for an event type,
// not counting wildcard subscribers
func (eb *DefaultEventBus) GetSubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	return len(eb.subscribers[eventType])
}

// GetQueueSize returns the current number of events in the queue
func (eb *DefaultEventBus) GetQueueSize() int {
	return len(eb.eventQueue)
}
