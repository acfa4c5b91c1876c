package events

import (
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesTypedEvents(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Stop()

	got := make(chan Event, 1)
	bus.Subscribe(EventTypeScrollFrame, func(ev Event) { got <- ev })

	bus.Publish(NewScrollFrameEvent(3, 900, "Successful"))

	ev := waitFor(t, got)
	if ev.Type != EventTypeScrollFrame {
		t.Fatalf("Expected %s, got %s", EventTypeScrollFrame, ev.Type)
	}
	if ev.Data["frame"] != 3 {
		t.Errorf("Expected frame 3, got %v", ev.Data["frame"])
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Stop()

	got := make(chan Event, 4)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.Publish(NewMonitorsChangedEvent(2, "0"))
	bus.Publish(NewCaptureFailedEvent("(0,0 10x10)", errors.New("boom")))

	seen := map[EventType]bool{}
	seen[waitFor(t, got).Type] = true
	seen[waitFor(t, got).Type] = true

	if !seen[EventTypeMonitorsChanged] || !seen[EventTypeCaptureFailed] {
		t.Errorf("Expected both events, got %v", seen)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Stop()

	id := bus.Subscribe(EventTypeError, func(Event) {})
	if n := bus.GetSubscriberCount(EventTypeError); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	bus.Unsubscribe(id)
	if n := bus.GetSubscriberCount(EventTypeError); n != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", n)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Stop()

	reported := make(chan struct{}, 1)
	bus.SetDiagnostics(func(string, ...interface{}) {
		select {
		case reported <- struct{}{}:
		default:
		}
	})

	bus.Subscribe(EventTypeError, func(Event) { panic("handler bug") })
	bus.Publish(NewErrorEvent("test", "bus", errors.New("x"), nil))

	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected panic to be reported")
	}
}

func TestPublishAfterStopIsDropped(t *testing.T) {
	bus := NewEventBus(1)

	delivered := make(chan Event, 1)
	bus.Subscribe(EventTypeError, func(ev Event) { delivered <- ev })

	dropped := make(chan struct{}, 1)
	bus.SetDiagnostics(func(string, ...interface{}) {
		select {
		case dropped <- struct{}{}:
		default:
		}
	})

	bus.Stop()
	bus.Stop()

	bus.Publish(NewErrorEvent("test", "bus", errors.New("late"), nil))

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected dropped event to be reported")
	}
	if bus.GetQueueSize() != 0 {
		t.Errorf("Expected empty queue, got %d", bus.GetQueueSize())
	}
}

func TestErrorEventMergesMetadata(t *testing.T) {
	ev := NewErrorEvent("scrolling", "stitch", errors.New("no overlap"), map[string]interface{}{
		"frame": 4,
	})

	if ev.Data["error"] != "no overlap" || ev.Data["frame"] != 4 {
		t.Errorf("Unexpected data: %v", ev.Data)
	}
	if ev.Source != "scrolling" {
		t.Errorf("Expected source scrolling, got %s", ev.Source)
	}
}
