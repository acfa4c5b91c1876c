//go:build !windows

package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"

	"jordanella.com/regioncap/internal/scrolling"
)

const keySettleDelay = 20 * time.Millisecond

// ActivateWindow focuses the process whose pid is handle
func (in *Input) ActivateWindow(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	if err := robotgo.ActivePid(int(handle)); err != nil {
		return fmt.Errorf("failed to activate pid %d: %w", handle, err)
	}
	return nil
}

// ScrollWindow scrolls the focused window. Scroll messages do not exist
// here and fall back to the mouse wheel.
func (in *Input) ScrollWindow(ctx context.Context, handle uintptr, method scrolling.ScrollMethod, amount int) error {
	switch method {
	case scrolling.ScrollMouseWheel:
		robotgo.ScrollDir(amount, "down")

	case scrolling.ScrollMessage:
		in.logger.Debug("Scroll messages unsupported on this platform, using mouse wheel")
		robotgo.ScrollDir(amount, "down")

	case scrolling.ScrollDownArrow:
		for i := 0; i < amount; i++ {
			if err := robotgo.KeyTap("down"); err != nil {
				return fmt.Errorf("key tap failed: %w", err)
			}
			if err := wait(ctx, keySettleDelay); err != nil {
				return err
			}
		}

	case scrolling.ScrollPageDown:
		if err := robotgo.KeyTap("pagedown"); err != nil {
			return fmt.Errorf("key tap failed: %w", err)
		}

	default:
		return fmt.Errorf("unsupported scroll method %s", method)
	}
	return nil
}

// ScrollToTop presses Home
func (in *Input) ScrollToTop(ctx context.Context, handle uintptr) error {
	if err := robotgo.KeyTap("home"); err != nil {
		return fmt.Errorf("key tap failed: %w", err)
	}
	return nil
}

// ScrollBarInfo is not available without native window access
func (in *Input) ScrollBarInfo(handle uintptr) (scrolling.ScrollBarInfo, bool) {
	return scrolling.ScrollBarInfo{}, false
}
