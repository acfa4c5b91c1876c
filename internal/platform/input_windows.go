//go:build windows

package platform

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"jordanella.com/regioncap/internal/scrolling"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSendMessageW        = user32.NewProc("SendMessageW")
	procGetScrollInfo       = user32.NewProc("GetScrollInfo")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procGetClientRect       = user32.NewProc("GetClientRect")
	procClientToScreen      = user32.NewProc("ClientToScreen")
	procSetCursorPos        = user32.NewProc("SetCursorPos")
	procKeybdEvent          = user32.NewProc("keybd_event")
	procMouseEvent          = user32.NewProc("mouse_event")
)

const (
	wmVScroll = 0x0115

	sbVert     = 1
	sbLineDown = 1
	sbTop      = 6

	sifAll = 0x17

	vkDown = 0x28
	vkNext = 0x22
	vkHome = 0x24

	keyEventFKeyUp    = 0x0002
	mouseEventFWheel  = 0x0800
	wheelDelta        = 120
	cursorSettleDelay = 50 * time.Millisecond
	homeSettleDelay   = 100 * time.Millisecond
)

type scrollInfo struct {
	Size     uint32
	Mask     uint32
	Min      int32
	Max      int32
	Page     uint32
	Pos      int32
	TrackPos int32
}

type winRect struct {
	Left, Top, Right, Bottom int32
}

type winPoint struct {
	X, Y int32
}

// ActivateWindow brings the window to the foreground
func (in *Input) ActivateWindow(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	ret, _, err := procSetForegroundWindow.Call(handle)
	if ret == 0 {
		return fmt.Errorf("SetForegroundWindow failed: %v", err)
	}
	return nil
}

// ScrollWindow scrolls the window down by amount units of method
func (in *Input) ScrollWindow(ctx context.Context, handle uintptr, method scrolling.ScrollMethod, amount int) error {
	switch method {
	case scrolling.ScrollMouseWheel:
		// wheel input goes to the window under the cursor
		if center, ok := clientCenter(handle); ok {
			procSetCursorPos.Call(uintptr(center.X), uintptr(center.Y))
			if err := wait(ctx, cursorSettleDelay); err != nil {
				return err
			}
		}
		delta := int32(-wheelDelta * amount)
		procMouseEvent.Call(mouseEventFWheel, 0, 0, uintptr(uint32(delta)), 0)

	case scrolling.ScrollDownArrow:
		for i := 0; i < amount; i++ {
			pressKey(vkDown)
		}

	case scrolling.ScrollPageDown:
		pressKey(vkNext)

	case scrolling.ScrollMessage:
		for i := 0; i < amount; i++ {
			procSendMessageW.Call(handle, wmVScroll, sbLineDown, 0)
		}

	default:
		return fmt.Errorf("unsupported scroll method %s", method)
	}
	return nil
}

// ScrollToTop sends Home, then WM_VSCROLL SB_TOP for windows that ignore keys
func (in *Input) ScrollToTop(ctx context.Context, handle uintptr) error {
	pressKey(vkHome)
	if err := wait(ctx, homeSettleDelay); err != nil {
		return err
	}
	procSendMessageW.Call(handle, wmVScroll, sbTop, 0)
	return nil
}

// ScrollBarInfo reads the vertical scroll bar of the window
func (in *Input) ScrollBarInfo(handle uintptr) (scrolling.ScrollBarInfo, bool) {
	info := scrollInfo{Mask: sifAll}
	info.Size = uint32(unsafe.Sizeof(info))

	ret, _, _ := procGetScrollInfo.Call(handle, sbVert, uintptr(unsafe.Pointer(&info)))
	if ret == 0 {
		return scrolling.ScrollBarInfo{}, false
	}

	return scrolling.ScrollBarInfo{
		Position: int(info.TrackPos),
		Min:      int(info.Min),
		Max:      int(info.Max),
		PageSize: int(info.Page),
	}, true
}

func clientCenter(handle uintptr) (winPoint, bool) {
	var rect winRect
	ret, _, _ := procGetClientRect.Call(handle, uintptr(unsafe.Pointer(&rect)))
	if ret == 0 || rect.Right <= rect.Left || rect.Bottom <= rect.Top {
		return winPoint{}, false
	}

	p := winPoint{
		X: rect.Left + (rect.Right-rect.Left)/2,
		Y: rect.Top + (rect.Bottom-rect.Top)/2,
	}
	ret, _, _ = procClientToScreen.Call(handle, uintptr(unsafe.Pointer(&p)))
	return p, ret != 0
}

func pressKey(vk byte) {
	procKeybdEvent.Call(uintptr(vk), 0, 0, 0)
	procKeybdEvent.Call(uintptr(vk), 0, keyEventFKeyUp, 0)
}
