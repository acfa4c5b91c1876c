package scrolling

import (
	"context"
	"fmt"
	"image"
	"strings"

	"jordanella.com/regioncap/internal/geometry"
)

// ScrollMethod selects how the target window is scrolled
type ScrollMethod int

const (
	ScrollMouseWheel ScrollMethod = iota
	ScrollDownArrow
	ScrollPageDown
	ScrollMessage
)

func (m ScrollMethod) String() string {
	switch m {
	case ScrollMouseWheel:
		return "wheel"
	case ScrollDownArrow:
		return "down"
	case ScrollPageDown:
		return "pagedown"
	case ScrollMessage:
		return "message"
	default:
		return fmt.Sprintf("ScrollMethod(%d)", int(m))
	}
}

// ParseScrollMethod accepts the names produced by String
func ParseScrollMethod(s string) (ScrollMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wheel", "mousewheel", "mouse_wheel":
		return ScrollMouseWheel, nil
	case "down", "downarrow", "down_arrow":
		return ScrollDownArrow, nil
	case "pagedown", "page_down":
		return ScrollPageDown, nil
	case "message", "scrollmessage", "scroll_message":
		return ScrollMessage, nil
	}
	return ScrollMouseWheel, fmt.Errorf("unknown scroll method %q", s)
}

// ScrollBarInfo is a snapshot of a window's vertical scroll bar
type ScrollBarInfo struct {
	Position int
	Min      int
	Max      int
	PageSize int
}

// IsAtBottom reports whether the visible page reaches the end of the range.
// A bar without a usable range never reports bottom.
func (s ScrollBarInfo) IsAtBottom() bool {
	if s.Max <= s.Min || s.PageSize <= 0 {
		return false
	}
	return s.Position+s.PageSize >= s.Max
}

// ScreenCapturer grabs the pixels of a physical screen rectangle
type ScreenCapturer interface {
	CaptureRect(ctx context.Context, rect geometry.PhysicalRect) (*image.RGBA, error)
}

// Scroller drives the target window
type Scroller interface {
	ScrollWindow(ctx context.Context, handle uintptr, method ScrollMethod, amount int) error
	ScrollToTop(ctx context.Context, handle uintptr) error
	// ScrollBarInfo is best effort; ok is false when the bar cannot be read.
	ScrollBarInfo(handle uintptr) (info ScrollBarInfo, ok bool)
}

// WindowActivator brings a window to the foreground
type WindowActivator interface {
	ActivateWindow(handle uintptr) error
}

// Recorder persists finished sessions
type Recorder interface {
	RecordSession(ctx context.Context, session Session) error
}
