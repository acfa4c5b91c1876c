package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// MaxCaptureDimension is the largest width or height accepted for a capture
const MaxCaptureDimension = 16384

var (
	ErrNoMonitors        = errors.New("at least one monitor required")
	ErrInvalidRegionSize = errors.New("invalid region size")
	ErrRegionTooLarge    = errors.New("region too large")
	ErrNoIntersection    = errors.New("region does not intersect any monitor")
)

// Transform converts between logical and physical coordinates for a fixed
// monitor layout. It is immutable after construction and safe for
// concurrent use; a configuration change builds a new Transform.
type Transform struct {
	monitors       []MonitorInfo
	primary        MonitorInfo
	virtualDesktop PhysicalRect
}

// NewTransform creates a transform for the given monitor snapshot
func NewTransform(monitors []MonitorInfo) (*Transform, error) {
	if len(monitors) == 0 {
		return nil, ErrNoMonitors
	}

	copied := make([]MonitorInfo, len(monitors))
	copy(copied, monitors)

	for _, m := range copied {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	primary := copied[0]
	for _, m := range copied {
		if m.IsPrimary {
			primary = m
			break
		}
	}

	desktop := copied[0].Bounds
	for _, m := range copied[1:] {
		desktop = desktop.Union(m.Bounds)
	}

	return &Transform{
		monitors:       copied,
		primary:        primary,
		virtualDesktop: desktop,
	}, nil
}

// Monitors returns a copy of the monitor snapshot
func (t *Transform) Monitors() []MonitorInfo {
	out := make([]MonitorInfo, len(t.monitors))
	copy(out, t.monitors)
	return out
}

// Primary returns the primary monitor
func (t *Transform) Primary() MonitorInfo {
	return t.primary
}

// VirtualDesktop returns the union of all monitor bounds
func (t *Transform) VirtualDesktop() PhysicalRect {
	return t.virtualDesktop
}

// VirtualDesktopLogical returns the virtual desktop in logical coordinates
func (t *Transform) VirtualDesktopLogical() LogicalRect {
	return t.PhysicalRectToLogical(t.virtualDesktop)
}

// Point conversions

// LogicalToPhysical converts a logical point to device pixels using the
// monitor whose logical bounds contain it (primary if none does). Halves
// round to even.
func (t *Transform) LogicalToPhysical(p LogicalPoint) PhysicalPoint {
	monitor, ok := t.FindMonitorContainingLogical(p)
	if !ok {
		monitor = t.primary
	}

	origin := t.monitorLogicalOrigin(monitor)
	localX := (p.X - origin.X) * monitor.ScaleFactor
	localY := (p.Y - origin.Y) * monitor.ScaleFactor

	return PhysicalPoint{
		X: int(math.RoundToEven(localX)) + monitor.Bounds.X,
		Y: int(math.RoundToEven(localY)) + monitor.Bounds.Y,
	}
}

// PhysicalToLogical converts a device pixel point to logical coordinates.
// No rounding is applied.
func (t *Transform) PhysicalToLogical(p PhysicalPoint) LogicalPoint {
	monitor, ok := t.FindMonitorContainingPhysical(p)
	if !ok {
		monitor = t.primary
	}

	localX := float64(p.X-monitor.Bounds.X) / monitor.ScaleFactor
	localY := float64(p.Y-monitor.Bounds.Y) / monitor.ScaleFactor
	origin := t.monitorLogicalOrigin(monitor)

	return LogicalPoint{X: localX + origin.X, Y: localY + origin.Y}
}

// Rectangle conversions

// LogicalRectToPhysical converts the two corners independently. This is
// exact for a rectangle inside one monitor and a straight-line
// approximation for one spanning monitors.
func (t *Transform) LogicalRectToPhysical(r LogicalRect) PhysicalRect {
	topLeft := t.LogicalToPhysical(r.TopLeft())
	bottomRight := t.LogicalToPhysical(r.BottomRight())
	return PhysicalRectFromCorners(topLeft, bottomRight)
}

// PhysicalRectToLogical converts the two corners independently
func (t *Transform) PhysicalRectToLogical(r PhysicalRect) LogicalRect {
	topLeft := t.PhysicalToLogical(r.TopLeft())
	bottomRight := t.PhysicalToLogical(r.BottomRight())
	return LogicalRectFromCorners(topLeft, bottomRight)
}

// Monitor detection

// FindMonitorContainingPhysical returns the first monitor whose bounds contain p
func (t *Transform) FindMonitorContainingPhysical(p PhysicalPoint) (MonitorInfo, bool) {
	for _, m := range t.monitors {
		if m.Bounds.Contains(p) {
			return m, true
		}
	}
	return MonitorInfo{}, false
}

// FindMonitorContainingLogical returns the first monitor whose logical bounds contain p
func (t *Transform) FindMonitorContainingLogical(p LogicalPoint) (MonitorInfo, bool) {
	for _, m := range t.monitors {
		if t.MonitorLogicalBounds(m).Contains(p) {
			return m, true
		}
	}
	return MonitorInfo{}, false
}

// MonitorsIntersecting returns every monitor overlapping region, largest
// intersection area first.
func (t *Transform) MonitorsIntersecting(region PhysicalRect) []MonitorInfo {
	type hit struct {
		monitor MonitorInfo
		area    int
	}

	var hits []hit
	for _, m := range t.monitors {
		if inter, ok := region.Intersect(m.Bounds); ok {
			hits = append(hits, hit{monitor: m, area: inter.Area()})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].area > hits[j].area
	})

	result := make([]MonitorInfo, len(hits))
	for i, h := range hits {
		result[i] = h.monitor
	}
	return result
}

// PrimaryMonitorForRegion returns the monitor with the largest overlap,
// or the primary monitor when nothing overlaps.
func (t *Transform) PrimaryMonitorForRegion(region PhysicalRect) MonitorInfo {
	if hits := t.MonitorsIntersecting(region); len(hits) > 0 {
		return hits[0]
	}
	return t.primary
}

// FindNearestMonitor returns the monitor whose logical bounds are closest to p
func (t *Transform) FindNearestMonitor(p LogicalPoint) MonitorInfo {
	nearest := t.monitors[0]
	best := math.Inf(1)
	for _, m := range t.monitors {
		if d := t.distanceToMonitor(p, m); d < best {
			best = d
			nearest = m
		}
	}
	return nearest
}

// MonitorLogicalBounds returns a monitor's bounds in logical coordinates
func (t *Transform) MonitorLogicalBounds(m MonitorInfo) LogicalRect {
	origin := t.monitorLogicalOrigin(m)
	return LogicalRect{
		X:      origin.X,
		Y:      origin.Y,
		Width:  float64(m.Bounds.Width) / m.ScaleFactor,
		Height: float64(m.Bounds.Height) / m.ScaleFactor,
	}
}

// monitorLogicalOrigin places non-primary monitors by converting their
// physical offset from the primary with the primary's scale factor.
func (t *Transform) monitorLogicalOrigin(m MonitorInfo) LogicalPoint {
	if m.IsPrimary {
		return LogicalPoint{}
	}

	dx := float64(m.Bounds.X - t.primary.Bounds.X)
	dy := float64(m.Bounds.Y - t.primary.Bounds.Y)

	return LogicalPoint{
		X: dx / t.primary.ScaleFactor,
		Y: dy / t.primary.ScaleFactor,
	}
}

func (t *Transform) distanceToMonitor(p LogicalPoint, m MonitorInfo) float64 {
	b := t.MonitorLogicalBounds(m)

	dx := math.Max(b.X-p.X, math.Max(0, p.X-b.Right()))
	dy := math.Max(b.Y-p.Y, math.Max(0, p.Y-b.Bottom()))

	return math.Hypot(dx, dy)
}

// Validation

// ValidateCaptureRegion checks a physical region before any capture attempt
func (t *Transform) ValidateCaptureRegion(region PhysicalRect) error {
	if region.Width <= 0 || region.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidRegionSize, region.Width, region.Height)
	}

	if region.Width > MaxCaptureDimension || region.Height > MaxCaptureDimension {
		return fmt.Errorf("%w: %dx%d (max %d)", ErrRegionTooLarge, region.Width, region.Height, MaxCaptureDimension)
	}

	for _, m := range t.monitors {
		if _, ok := region.Intersect(m.Bounds); ok {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrNoIntersection, region)
}

// RoundTripError returns the pixel distance between p and
// LogicalToPhysical(PhysicalToLogical(p)).
func (t *Transform) RoundTripError(p PhysicalPoint) float64 {
	back := t.LogicalToPhysical(t.PhysicalToLogical(p))
	return math.Hypot(float64(p.X-back.X), float64(p.Y-back.Y))
}
