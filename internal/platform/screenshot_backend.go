package platform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/kbinani/screenshot"

	"jordanella.com/regioncap/internal/capture"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
)

var (
	ErrNoDisplays    = errors.New("no active displays found")
	ErrBackendClosed = errors.New("screenshot backend closed")
)

// displaySource is the subset of kbinani/screenshot used by the backend
type displaySource interface {
	NumActiveDisplays() int
	GetDisplayBounds(index int) image.Rectangle
	CaptureRect(rect image.Rectangle) (*image.RGBA, error)
}

type kbinaniDisplays struct{}

func (kbinaniDisplays) NumActiveDisplays() int { return screenshot.NumActiveDisplays() }

func (kbinaniDisplays) GetDisplayBounds(index int) image.Rectangle {
	return screenshot.GetDisplayBounds(index)
}

func (kbinaniDisplays) CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}

// ScreenshotBackend implements capture.Backend with kbinani/screenshot.
// Display 0 is treated as primary. The library does not expose DPI, so
// scale factors come from configured overrides keyed by display index.
type ScreenshotBackend struct {
	displays       displaySource
	scaleOverrides map[int]float64
	logger         *logging.Logger

	mu        sync.RWMutex
	callbacks []func([]geometry.MonitorInfo)
	closed    bool
}

// NewScreenshotBackend creates a backend for the local displays
func NewScreenshotBackend(scaleOverrides map[int]float64, logger *logging.Logger) *ScreenshotBackend {
	return newScreenshotBackend(kbinaniDisplays{}, scaleOverrides, logger)
}

func newScreenshotBackend(displays displaySource, scaleOverrides map[int]float64, logger *logging.Logger) *ScreenshotBackend {
	if logger == nil {
		logger = logging.NewLogger("ScreenshotBackend")
	}
	overrides := make(map[int]float64, len(scaleOverrides))
	for k, v := range scaleOverrides {
		overrides[k] = v
	}
	return &ScreenshotBackend{
		displays:       displays,
		scaleOverrides: overrides,
		logger:         logger,
	}
}

// Monitors enumerates the active displays
func (b *ScreenshotBackend) Monitors() ([]geometry.MonitorInfo, error) {
	n := b.displays.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoDisplays
	}

	monitors := make([]geometry.MonitorInfo, 0, n)
	for i := 0; i < n; i++ {
		bounds := geometry.PhysicalRectFromImage(b.displays.GetDisplayBounds(i))
		monitors = append(monitors, geometry.MonitorInfo{
			ID:           strconv.Itoa(i),
			Name:         fmt.Sprintf("Display %d", i),
			IsPrimary:    i == 0,
			Bounds:       bounds,
			WorkingArea:  bounds,
			ScaleFactor:  b.scaleFor(i),
			BitsPerPixel: 32,
		})
	}
	return monitors, nil
}

func (b *ScreenshotBackend) scaleFor(index int) float64 {
	if s, ok := b.scaleOverrides[index]; ok && s > 0 {
		return s
	}
	return 1.0
}

// CaptureRegion copies the pixels of region. The library call is not
// cancellable, so ctx is only checked around it.
func (b *ScreenshotBackend) CaptureRegion(ctx context.Context, region geometry.PhysicalRect, opts capture.Options) (*capture.Bitmap, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrBackendClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := b.displays.CaptureRect(region.ToImage())
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", region, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return capture.NewBitmap(img, region, b.scaleAt(region.TopLeft())), nil
}

func (b *ScreenshotBackend) scaleAt(p geometry.PhysicalPoint) float64 {
	n := b.displays.NumActiveDisplays()
	for i := 0; i < n; i++ {
		if geometry.PhysicalRectFromImage(b.displays.GetDisplayBounds(i)).Contains(p) {
			return b.scaleFor(i)
		}
	}
	return b.scaleFor(0)
}

// Capabilities reports what kbinani/screenshot can do
func (b *ScreenshotBackend) Capabilities() capture.Capabilities {
	return capture.Capabilities{
		BackendName:          "kbinani/screenshot",
		Version:              "1",
		HardwareAcceleration: false,
		CursorCapture:        false,
		HDR:                  false,
		PerMonitorDPI:        len(b.scaleOverrides) > 0,
		MonitorHotplug:       true,
		MaxCaptureResolution: geometry.MaxCaptureDimension,
		RequiresPermission:   false,
	}
}

// OnConfigurationChanged registers fn for NotifyConfigurationChanged
func (b *ScreenshotBackend) OnConfigurationChanged(fn func([]geometry.MonitorInfo)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, fn)
}

// NotifyConfigurationChanged forwards a new monitor snapshot to the
// registered callbacks. The monitor watcher calls it when polling detects
// a change, since the library has no change notification of its own.
func (b *ScreenshotBackend) NotifyConfigurationChanged(monitors []geometry.MonitorInfo) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	callbacks := make([]func([]geometry.MonitorInfo), len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.mu.RUnlock()

	b.logger.InfoWithContext("Display configuration changed", map[string]interface{}{
		"monitors": len(monitors),
	})
	for _, fn := range callbacks {
		fn(monitors)
	}
}

// Close drops callbacks and rejects further captures
func (b *ScreenshotBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.callbacks = nil
	return nil
}
