package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
)

var (
	ErrNilBackend      = errors.New("capture backend is nil")
	ErrClosed          = errors.New("orchestrator closed")
	ErrNoValidCaptures = errors.New("no monitor could be captured")
	ErrEmptyCapture    = errors.New("backend returned an empty bitmap")
)

// Orchestrator turns logical selections into physical captures. It holds
// the current coordinate transform and replaces it whenever the monitor
// configuration changes.
type Orchestrator struct {
	backend   Backend
	transform atomic.Pointer[geometry.Transform]
	closed    atomic.Bool

	logger   *logging.Logger
	reporter *logging.ErrorReporter
	bus      events.EventBus
	subID    events.SubscriptionID
	defaults Options
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the orchestrator logger
func WithLogger(logger *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEventBus publishes lifecycle events to bus and listens on it for
// monitor configuration changes
func WithEventBus(bus events.EventBus) OrchestratorOption {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithErrorReporter records tolerated per-monitor failures
func WithErrorReporter(reporter *logging.ErrorReporter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.reporter = reporter
	}
}

// WithDefaults sets the capture options applied before per-call options
func WithDefaults(opts Options) OrchestratorOption {
	return func(o *Orchestrator) {
		o.defaults = opts
	}
}

// NewOrchestrator builds the initial transform from the backend's monitors
func NewOrchestrator(backend Backend, opts ...OrchestratorOption) (*Orchestrator, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}

	o := &Orchestrator{
		backend:  backend,
		defaults: DefaultOptions(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger("Orchestrator")
	}

	monitors, err := backend.Monitors()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate monitors: %w", err)
	}
	t, err := geometry.NewTransform(monitors)
	if err != nil {
		return nil, fmt.Errorf("failed to build coordinate transform: %w", err)
	}
	o.transform.Store(t)

	backend.OnConfigurationChanged(o.applyMonitors)
	if o.bus != nil {
		o.subID = o.bus.Subscribe(events.EventTypeMonitorsChanged, o.handleMonitorsEvent)
	}

	o.logger.InfoWithContext("Orchestrator ready", map[string]interface{}{
		"backend":  backend.Capabilities().BackendName,
		"monitors": len(monitors),
	})

	return o, nil
}

// HandleMonitorsChanged swaps in a transform for the new monitor snapshot.
// An invalid snapshot is rejected and the current transform stays, as it
// does for a snapshot with the current layout.
func (o *Orchestrator) HandleMonitorsChanged(monitors []geometry.MonitorInfo) error {
	if o.closed.Load() {
		return ErrClosed
	}

	t, err := geometry.NewTransform(monitors)
	if err != nil {
		o.logger.Error("Ignoring invalid monitor configuration", err)
		return err
	}

	if current := o.transform.Load(); current != nil && geometry.SameLayout(current.Monitors(), t.Monitors()) {
		return nil
	}

	o.transform.Store(t)
	o.logger.InfoWithContext("Monitor configuration updated", map[string]interface{}{
		"monitors": len(monitors),
		"desktop":  t.VirtualDesktop().String(),
	})
	return nil
}

func (o *Orchestrator) handleMonitorsEvent(ev events.Event) {
	monitors, ok := ev.Data["monitors"].([]geometry.MonitorInfo)
	if !ok {
		return
	}
	o.applyMonitors(monitors)
}

// applyMonitors is HandleMonitorsChanged for notification paths that have
// no caller to return the error to
func (o *Orchestrator) applyMonitors(monitors []geometry.MonitorInfo) {
	err := o.HandleMonitorsChanged(monitors)
	if err == nil || errors.Is(err, ErrClosed) || o.reporter == nil {
		return
	}
	o.reporter.ReportErrorWithContext(logging.ErrorCategoryGeometry, logging.ErrorSeverityMedium,
		"Orchestrator", "Monitor configuration rejected", err, map[string]interface{}{
			"monitors": len(monitors),
		})
}

// Transform returns the current coordinate transform
func (o *Orchestrator) Transform() (*geometry.Transform, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	return o.transform.Load(), nil
}

// MonitorsForOverlay returns monitors ordered for overlay windows:
// primary first, then by X, then by Y
func (o *Orchestrator) MonitorsForOverlay() ([]geometry.MonitorInfo, error) {
	t, err := o.Transform()
	if err != nil {
		return nil, err
	}

	monitors := t.Monitors()
	sort.SliceStable(monitors, func(i, j int) bool {
		a, b := monitors[i], monitors[j]
		if a.IsPrimary != b.IsPrimary {
			return a.IsPrimary
		}
		if a.Bounds.X != b.Bounds.X {
			return a.Bounds.X < b.Bounds.X
		}
		return a.Bounds.Y < b.Bounds.Y
	})
	return monitors, nil
}

// LogicalToPhysical converts a point with the current transform
func (o *Orchestrator) LogicalToPhysical(p geometry.LogicalPoint) (geometry.PhysicalPoint, error) {
	t, err := o.Transform()
	if err != nil {
		return geometry.PhysicalPoint{}, err
	}
	return t.LogicalToPhysical(p), nil
}

// PhysicalToLogical converts a point with the current transform
func (o *Orchestrator) PhysicalToLogical(p geometry.PhysicalPoint) (geometry.LogicalPoint, error) {
	t, err := o.Transform()
	if err != nil {
		return geometry.LogicalPoint{}, err
	}
	return t.PhysicalToLogical(p), nil
}

// LogicalRectToPhysical converts a rectangle with the current transform
func (o *Orchestrator) LogicalRectToPhysical(r geometry.LogicalRect) (geometry.PhysicalRect, error) {
	t, err := o.Transform()
	if err != nil {
		return geometry.PhysicalRect{}, err
	}
	return t.LogicalRectToPhysical(r), nil
}

// PhysicalRectToLogical converts a rectangle with the current transform
func (o *Orchestrator) PhysicalRectToLogical(r geometry.PhysicalRect) (geometry.LogicalRect, error) {
	t, err := o.Transform()
	if err != nil {
		return geometry.LogicalRect{}, err
	}
	return t.PhysicalRectToLogical(r), nil
}

// Capabilities reports the backend capabilities
func (o *Orchestrator) Capabilities() (Capabilities, error) {
	if o.closed.Load() {
		return Capabilities{}, ErrClosed
	}
	return o.backend.Capabilities(), nil
}

// CaptureRegion captures a logical selection. A selection spanning several
// monitors is captured per monitor in parallel and stitched.
func (o *Orchestrator) CaptureRegion(ctx context.Context, region geometry.LogicalRect, opts ...Option) (*Bitmap, error) {
	t, err := o.Transform()
	if err != nil {
		return nil, err
	}
	return o.capture(ctx, t, t.LogicalRectToPhysical(region), opts)
}

// CapturePhysicalRegion captures a region already expressed in device pixels
func (o *Orchestrator) CapturePhysicalRegion(ctx context.Context, region geometry.PhysicalRect, opts ...Option) (*Bitmap, error) {
	t, err := o.Transform()
	if err != nil {
		return nil, err
	}
	return o.capture(ctx, t, region, opts)
}

func (o *Orchestrator) capture(ctx context.Context, t *geometry.Transform, physical geometry.PhysicalRect, opts []Option) (*Bitmap, error) {
	if err := t.ValidateCaptureRegion(physical); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := buildOptions(o.defaults, opts)
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	monitors := t.MonitorsIntersecting(physical)
	start := time.Now()
	o.publish(events.NewCaptureStartedEvent(physical.String(), len(monitors)))

	var (
		bitmap   *Bitmap
		captured int
		err      error
	)
	if len(monitors) == 1 {
		bitmap, err = o.captureSingle(ctx, physical, monitors[0], options)
		captured = 1
	} else {
		bitmap, captured, err = o.captureMulti(ctx, physical, monitors, options)
	}

	if err != nil {
		o.logger.ErrorWithContext("Region capture failed", err, map[string]interface{}{
			"region": physical.String(),
		})
		o.publish(events.NewCaptureFailedEvent(physical.String(), err))
		return nil, err
	}

	duration := time.Since(start)
	o.logger.DebugWithContext("Region captured", map[string]interface{}{
		"region":      physical.String(),
		"monitors":    len(monitors),
		"captured":    captured,
		"duration_ms": duration.Milliseconds(),
	})
	o.publish(events.NewCaptureCompletedEvent(physical.String(), captured, len(monitors), duration))

	return bitmap, nil
}

func (o *Orchestrator) captureSingle(ctx context.Context, physical geometry.PhysicalRect, m geometry.MonitorInfo, opts Options) (*Bitmap, error) {
	bitmap, err := o.backend.CaptureRegion(ctx, physical, opts)
	if err != nil {
		return nil, fmt.Errorf("capture %s on monitor %s: %w", physical, m.ID, err)
	}
	if bitmap.Empty() {
		return nil, fmt.Errorf("%w: monitor %s: %w", ErrNoValidCaptures, m.ID, ErrEmptyCapture)
	}

	if bitmap.Region.IsEmpty() {
		bitmap.Region = physical
	}
	if bitmap.ScaleFactor == 0 {
		bitmap.ScaleFactor = m.ScaleFactor
	}
	return bitmap, nil
}

func (o *Orchestrator) captureMulti(ctx context.Context, physical geometry.PhysicalRect, monitors []geometry.MonitorInfo, opts Options) (*Bitmap, int, error) {
	slots := make([]monitorCapture, len(monitors))

	var wg sync.WaitGroup
	for i, m := range monitors {
		area, _ := physical.Intersect(m.Bounds)
		slots[i] = monitorCapture{monitor: m, area: area}

		wg.Add(1)
		go func(slot *monitorCapture) {
			defer wg.Done()
			slot.bitmap, slot.err = o.backend.CaptureRegion(ctx, slot.area, opts)
		}(&slots[i])
	}
	wg.Wait()

	return o.stitch(physical, slots)
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}

// Close releases the backend. Every later call returns ErrClosed.
func (o *Orchestrator) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if o.bus != nil {
		o.bus.Unsubscribe(o.subID)
	}
	o.logger.Info("Orchestrator closed")
	return o.backend.Close()
}
