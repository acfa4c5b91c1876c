package platform

import (
	"context"
	"time"

	"jordanella.com/regioncap/internal/logging"
)

// Input scrolls and activates windows. It implements scrolling.Scroller
// and scrolling.WindowActivator; the platform-specific methods live in
// input_windows.go and input_other.go.
type Input struct {
	logger *logging.Logger
}

// NewInput creates the input service for the current platform
func NewInput(logger *logging.Logger) *Input {
	if logger == nil {
		logger = logging.NewLogger("Input")
	}
	return &Input{logger: logger}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
