package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Display configuration events
	EventTypeMonitorsChanged EventType = "monitors.changed"

	// Region capture events
	EventTypeCaptureStarted       EventType = "capture.region_started"
	EventTypeCaptureCompleted     EventType = "capture.region_completed"
	EventTypeCaptureFailed        EventType = "capture.region_failed"
	EventTypeCaptureMonitorFailed EventType = "capture.monitor_failed"

	// Scrolling capture events
	EventTypeScrollStarted   EventType = "scroll.started"
	EventTypeScrollFrame     EventType = "scroll.frame"
	EventTypeScrollCompleted EventType = "scroll.completed"

	// Error events
	EventTypeError EventType = "error"
)

// AllEventTypes lists every event type published by this module
var AllEventTypes = []EventType{
	EventTypeMonitorsChanged,
	EventTypeCaptureStarted,
	EventTypeCaptureCompleted,
	EventTypeCaptureFailed,
	EventTypeCaptureMonitorFailed,
	EventTypeScrollStarted,
	EventTypeScrollFrame,
	EventTypeScrollCompleted,
	EventTypeError,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "capture", "scrolling")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// SubscribeAll registers a handler that receives every event
	SubscribeAll(handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish sends an event to all subscribers (blocking until queued)
	Publish(event Event)

	// PublishAsync sends an event asynchronously (non-blocking)
	PublishAsync(event Event)

	// Stop stops the event bus and drains remaining events
	Stop()
}

// Helper functions to create common events

// NewMonitorsChangedEvent creates a display configuration change event
func NewMonitorsChangedEvent(count int, primaryID string) Event {
	return Event{
		Type:      EventTypeMonitorsChanged,
		Source:    "monitor_watcher",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"monitor_count": count,
			"primary_id":    primaryID,
		},
	}
}

// NewCaptureStartedEvent creates a region capture started event
func NewCaptureStartedEvent(region string, monitorCount int) Event {
	return Event{
		Type:      EventTypeCaptureStarted,
		Source:    "capture",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"region":   region,
			"monitors": monitorCount,
		},
	}
}

// NewCaptureCompletedEvent creates a region capture completed event
func NewCaptureCompletedEvent(region string, captured, requested int, duration time.Duration) Event {
	return Event{
		Type:      EventTypeCaptureCompleted,
		Source:    "capture",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"region":      region,
			"captured":    captured,
			"requested":   requested,
			"duration_ms": duration.Milliseconds(),
		},
	}
}

// NewCaptureFailedEvent creates a region capture failed event
func NewCaptureFailedEvent(region string, err error) Event {
	return Event{
		Type:      EventTypeCaptureFailed,
		Source:    "capture",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"region": region,
			"error":  err.Error(),
		},
	}
}

// NewCaptureMonitorFailedEvent creates an event for a single monitor whose
// capture failed while the rest of the region was still captured
func NewCaptureMonitorFailedEvent(monitorID string, err error) Event {
	return Event{
		Type:      EventTypeCaptureMonitorFailed,
		Source:    "capture",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"monitor_id": monitorID,
			"error":      err.Error(),
		},
	}
}

// NewScrollStartedEvent creates a scrolling capture started event
func NewScrollStartedEvent(region string, method string) Event {
	return Event{
		Type:      EventTypeScrollStarted,
		Source:    "scrolling",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"region": region,
			"method": method,
		},
	}
}

// NewScrollFrameEvent creates an event for one stitched frame
func NewScrollFrameEvent(frame, resultHeight int, status string) Event {
	return Event{
		Type:      EventTypeScrollFrame,
		Source:    "scrolling",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"frame":         frame,
			"result_height": resultHeight,
			"status":        status,
		},
	}
}

// NewScrollCompletedEvent creates a scrolling capture completed event
func NewScrollCompletedEvent(frames, resultHeight int, status, reason string) Event {
	return Event{
		Type:      EventTypeScrollCompleted,
		Source:    "scrolling",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"frames":        frames,
			"result_height": resultHeight,
			"status":        status,
			"reason":        reason,
		},
	}
}

// NewErrorEvent creates an error event
func NewErrorEvent(source, component string, err error, metadata map[string]interface{}) Event {
	data := map[string]interface{}{
		"source":    source,
		"component": component,
		"error":     err.Error(),
	}

	// Merge metadata
	for k, v := range metadata {
		data[k] = v
	}

	return Event{
		Type:      EventTypeError,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}
