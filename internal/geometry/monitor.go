package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMonitor is returned for monitors with empty bounds or a bad scale factor
	ErrInvalidMonitor = errors.New("invalid monitor")
)

// MonitorInfo is an immutable snapshot of one display as reported by a
// capture backend. A configuration change replaces the whole set.
type MonitorInfo struct {
	ID           string
	Name         string
	IsPrimary    bool
	Bounds       PhysicalRect
	WorkingArea  PhysicalRect
	ScaleFactor  float64
	RefreshRate  int
	BitsPerPixel int
}

// Validate checks the monitor invariants
func (m MonitorInfo) Validate() error {
	if m.Bounds.Width <= 0 || m.Bounds.Height <= 0 {
		return fmt.Errorf("%w: monitor %q has bounds %s", ErrInvalidMonitor, m.ID, m.Bounds)
	}
	if !(m.ScaleFactor > 0) {
		return fmt.Errorf("%w: monitor %q has scale factor %v", ErrInvalidMonitor, m.ID, m.ScaleFactor)
	}
	return nil
}

func (m MonitorInfo) String() string {
	primary := ""
	if m.IsPrimary {
		primary = " primary"
	}
	return fmt.Sprintf("%s[%s] %s @%.2fx%s", m.Name, m.ID, m.Bounds, m.ScaleFactor, primary)
}

// SameLayout reports whether two monitor snapshots describe the same
// configuration (ids, bounds, work areas and scale factors, in order).
func SameLayout(a, b []MonitorInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID ||
			a[i].IsPrimary != b[i].IsPrimary ||
			a[i].Bounds != b[i].Bounds ||
			a[i].WorkingArea != b[i].WorkingArea ||
			a[i].ScaleFactor != b[i].ScaleFactor {
			return false
		}
	}
	return true
}
