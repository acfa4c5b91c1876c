//go:build !windows

package platform

import (
	"fmt"

	"github.com/go-vgo/robotgo"

	"jordanella.com/regioncap/internal/geometry"
)

// listWindows returns one entry per process with a window. The handle is
// the pid, which is what ActivateWindow expects here.
func listWindows() ([]Window, error) {
	pids, err := robotgo.FindIds("")
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var out []Window
	for _, pid := range pids {
		name, err := robotgo.FindName(pid)
		if err != nil || name == "" {
			continue
		}
		x, y, w, h := robotgo.GetBounds(pid)
		out = append(out, Window{
			Handle: uintptr(pid),
			Title:  name,
			Bounds: geometry.NewPhysicalRect(x, y, w, h),
		})
	}
	return out, nil
}
