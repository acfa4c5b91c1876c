package capture

import (
	"context"
	"time"

	"jordanella.com/regioncap/internal/geometry"
)

// Backend is the platform capture service. It knows how to enumerate
// monitors and copy pixels for a physical rectangle; everything else
// (coordinate mapping, multi-monitor stitching) happens above it.
type Backend interface {
	Monitors() ([]geometry.MonitorInfo, error)
	CaptureRegion(ctx context.Context, region geometry.PhysicalRect, opts Options) (*Bitmap, error)
	Capabilities() Capabilities
	// OnConfigurationChanged registers a callback invoked with the new
	// monitor snapshot after a display change.
	OnConfigurationChanged(fn func([]geometry.MonitorInfo))
	Close() error
}

// Capabilities describes what a backend supports
type Capabilities struct {
	BackendName          string
	Version              string
	HardwareAcceleration bool
	CursorCapture        bool
	HDR                  bool
	PerMonitorDPI        bool
	MonitorHotplug       bool
	MaxCaptureResolution int
	RequiresPermission   bool
}

// Options are the per-capture settings passed to a backend
type Options struct {
	ShowCursor bool
	Timeout    time.Duration
	HDR        bool
}

// DefaultOptions returns recommended capture options
func DefaultOptions() Options {
	return Options{
		ShowCursor: false,
		Timeout:    5 * time.Second,
	}
}

// Option modifies capture Options
type Option func(*Options)

// WithCursor includes the mouse cursor when the backend supports it
func WithCursor(show bool) Option {
	return func(opts *Options) {
		opts.ShowCursor = show
	}
}

// WithTimeout bounds a single capture call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = d
	}
}

// WithHDR requests high dynamic range capture when available
func WithHDR(enabled bool) Option {
	return func(opts *Options) {
		opts.HDR = enabled
	}
}

func buildOptions(base Options, opts []Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}
