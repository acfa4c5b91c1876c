//go:build windows

package platform

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"jordanella.com/regioncap/internal/geometry"
)

var (
	procEnumWindows      = user32.NewProc("EnumWindows")
	procGetWindowRect    = user32.NewProc("GetWindowRect")
	procIsWindowVisible  = user32.NewProc("IsWindowVisible")
	procGetWindowTextLen = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW   = user32.NewProc("GetWindowTextW")
)

// Callbacks created by NewCallback are never released and their number is
// limited, so one is shared by every enumeration. enumMu serializes
// enumerations over enumFound.
var (
	enumMu       sync.Mutex
	enumFound    []Window
	enumCallback = windows.NewCallback(enumWindowProc)
)

func listWindows() ([]Window, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumFound = nil
	procEnumWindows.Call(enumCallback, 0)

	out := enumFound
	enumFound = nil
	return out, nil
}

func enumWindowProc(hwnd uintptr, lparam uintptr) uintptr {
	if w, ok := describeWindow(hwnd); ok {
		enumFound = append(enumFound, w)
	}
	return 1
}

func describeWindow(hwnd uintptr) (Window, bool) {
	if visible, _, _ := procIsWindowVisible.Call(hwnd); visible == 0 {
		return Window{}, false
	}

	n, _, _ := procGetWindowTextLen.Call(hwnd)
	if n == 0 {
		return Window{}, false
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))

	var rect winRect
	if ret, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rect))); ret == 0 {
		return Window{}, false
	}

	return Window{
		Handle: hwnd,
		Title:  windows.UTF16ToString(buf),
		Bounds: geometry.NewPhysicalRect(int(rect.Left), int(rect.Top),
			int(rect.Right-rect.Left), int(rect.Bottom-rect.Top)),
	}, true
}
