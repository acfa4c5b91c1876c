package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
)

var errFakeCapture = errors.New("fake capture failure")

// fakeBackend fills each capture with a color chosen by the monitor that
// contains the requested rectangle's top-left corner
type fakeBackend struct {
	mu       sync.Mutex
	monitors []geometry.MonitorInfo
	colors   map[string]color.RGBA
	failing  map[string]bool
	calls    []geometry.PhysicalRect
	onChange func([]geometry.MonitorInfo)
	closed   bool
}

func newFakeBackend(monitors ...geometry.MonitorInfo) *fakeBackend {
	return &fakeBackend{
		monitors: monitors,
		colors:   map[string]color.RGBA{},
		failing:  map[string]bool{},
	}
}

func (f *fakeBackend) Monitors() ([]geometry.MonitorInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]geometry.MonitorInfo(nil), f.monitors...), nil
}

func (f *fakeBackend) CaptureRegion(ctx context.Context, region geometry.PhysicalRect, opts Options) (*Bitmap, error) {
	f.mu.Lock()
	f.calls = append(f.calls, region)
	var owner geometry.MonitorInfo
	for _, m := range f.monitors {
		if m.Bounds.Contains(region.TopLeft()) {
			owner = m
			break
		}
	}
	fail := f.failing[owner.ID]
	c := f.colors[owner.ID]
	f.mu.Unlock()

	if fail {
		return nil, errFakeCapture
	}

	img := image.NewRGBA(image.Rect(0, 0, region.Width, region.Height))
	for y := 0; y < region.Height; y++ {
		for x := 0; x < region.Width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return NewBitmap(img, region, owner.ScaleFactor), nil
}

func (f *fakeBackend) Capabilities() Capabilities {
	return Capabilities{BackendName: "fake", MaxCaptureResolution: geometry.MaxCaptureDimension}
}

func (f *fakeBackend) OnConfigurationChanged(fn func([]geometry.MonitorInfo)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func monitor(id string, primary bool, x, y, w, h int, scale float64) geometry.MonitorInfo {
	return geometry.MonitorInfo{
		ID:          id,
		Name:        "Display " + id,
		IsPrimary:   primary,
		Bounds:      geometry.NewPhysicalRect(x, y, w, h),
		WorkingArea: geometry.NewPhysicalRect(x, y, w, h),
		ScaleFactor: scale,
	}
}

func quietLogger() *logging.Logger {
	return logging.NewLogger("test").SetOutput(&bytes.Buffer{})
}

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func dualBackend() *fakeBackend {
	f := newFakeBackend(
		monitor("0", true, 0, 0, 1920, 1080, 1.0),
		monitor("1", false, 1920, 0, 1920, 1080, 1.0),
	)
	f.colors["0"] = red
	f.colors["1"] = blue
	return f
}

func TestNewOrchestratorRequiresBackend(t *testing.T) {
	if _, err := NewOrchestrator(nil); !errors.Is(err, ErrNilBackend) {
		t.Fatalf("Expected ErrNilBackend, got %v", err)
	}
}

func TestNewOrchestratorRejectsEmptyMonitorSet(t *testing.T) {
	if _, err := NewOrchestrator(newFakeBackend(), WithLogger(quietLogger())); !errors.Is(err, geometry.ErrNoMonitors) {
		t.Fatalf("Expected ErrNoMonitors, got %v", err)
	}
}

func TestCaptureRegionSingleMonitor(t *testing.T) {
	backend := newFakeBackend(monitor("0", true, 0, 0, 1920, 1080, 1.0))
	backend.colors["0"] = red

	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	bmp, err := o.CaptureRegion(context.Background(), geometry.LogicalRect{X: 100, Y: 100, Width: 200, Height: 100})
	if err != nil {
		t.Fatalf("CaptureRegion failed: %v", err)
	}

	if bmp.Width() != 200 || bmp.Height() != 100 {
		t.Errorf("Expected 200x100, got %dx%d", bmp.Width(), bmp.Height())
	}
	if want := geometry.NewPhysicalRect(100, 100, 200, 100); bmp.Region != want {
		t.Errorf("Expected region %s, got %s", want, bmp.Region)
	}
	if n := backend.callCount(); n != 1 {
		t.Errorf("Expected 1 backend call, got %d", n)
	}
}

func TestCaptureRegionScaledMonitor(t *testing.T) {
	backend := newFakeBackend(monitor("0", true, 0, 0, 2880, 1620, 1.5))

	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	bmp, err := o.CaptureRegion(context.Background(), geometry.LogicalRect{X: 100, Y: 100, Width: 200, Height: 100})
	if err != nil {
		t.Fatalf("CaptureRegion failed: %v", err)
	}

	if want := geometry.NewPhysicalRect(150, 150, 300, 150); bmp.Region != want {
		t.Errorf("Expected region %s, got %s", want, bmp.Region)
	}
	if bmp.ScaleFactor != 1.5 {
		t.Errorf("Expected scale 1.5, got %v", bmp.ScaleFactor)
	}
}

func TestCaptureRegionStitchesMonitors(t *testing.T) {
	backend := dualBackend()
	bus := events.NewEventBus(16)
	defer bus.Stop()

	completed := make(chan events.Event, 1)
	bus.Subscribe(events.EventTypeCaptureCompleted, func(ev events.Event) { completed <- ev })

	o, err := NewOrchestrator(backend, WithLogger(quietLogger()), WithEventBus(bus))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	// 120 px on the primary, 180 px on the secondary
	bmp, err := o.CaptureRegion(context.Background(), geometry.LogicalRect{X: 1800, Y: 100, Width: 300, Height: 50})
	if err != nil {
		t.Fatalf("CaptureRegion failed: %v", err)
	}

	if bmp.Width() != 300 || bmp.Height() != 50 {
		t.Fatalf("Expected 300x50, got %dx%d", bmp.Width(), bmp.Height())
	}
	checks := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, red},
		{119, 49, red},
		{120, 0, blue},
		{299, 49, blue},
	}
	for _, c := range checks {
		if got := bmp.Image.RGBAAt(c.x, c.y); got != c.want {
			t.Errorf("Pixel (%d,%d): expected %v, got %v", c.x, c.y, c.want, got)
		}
	}
	if n := backend.callCount(); n != 2 {
		t.Errorf("Expected 2 backend calls, got %d", n)
	}

	select {
	case ev := <-completed:
		if ev.Data["captured"] != 2 {
			t.Errorf("Expected 2 captured monitors in event, got %v", ev.Data["captured"])
		}
	case <-time.After(2 * time.Second):
		t.Error("Expected capture.region_completed event")
	}
}

func TestCaptureRegionToleratesMonitorFailure(t *testing.T) {
	backend := dualBackend()
	backend.failing["1"] = true

	reporter := logging.NewErrorReporter(quietLogger(), 10)
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()), WithErrorReporter(reporter))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	bmp, err := o.CaptureRegion(context.Background(), geometry.LogicalRect{X: 1800, Y: 100, Width: 300, Height: 50})
	if err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}

	if got := bmp.Image.RGBAAt(10, 10); got != red {
		t.Errorf("Expected captured part red, got %v", got)
	}
	black := color.RGBA{A: 255}
	if got := bmp.Image.RGBAAt(200, 10); got != black {
		t.Errorf("Expected missing part opaque black, got %v", got)
	}

	if reports := reporter.GetErrorsByCategory(logging.ErrorCategoryCapture, 10); len(reports) != 1 {
		t.Errorf("Expected 1 reported monitor failure, got %d", len(reports))
	}
}

func TestCaptureRegionAllMonitorsFail(t *testing.T) {
	backend := dualBackend()
	backend.failing["0"] = true
	backend.failing["1"] = true

	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	_, err = o.CaptureRegion(context.Background(), geometry.LogicalRect{X: 1800, Y: 100, Width: 300, Height: 50})
	if !errors.Is(err, ErrNoValidCaptures) {
		t.Fatalf("Expected ErrNoValidCaptures, got %v", err)
	}
	if !errors.Is(err, errFakeCapture) {
		t.Errorf("Expected per-monitor cause to be wrapped, got %v", err)
	}
}

func TestCaptureRegionValidatesBeforeCapturing(t *testing.T) {
	backend := dualBackend()
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	tests := []struct {
		name   string
		region geometry.LogicalRect
		want   error
	}{
		{"too large", geometry.LogicalRect{X: 0, Y: 0, Width: 20000, Height: 100}, geometry.ErrRegionTooLarge},
		{"empty", geometry.LogicalRect{X: 10, Y: 10, Width: 0, Height: 10}, geometry.ErrInvalidRegionSize},
		{"off screen", geometry.LogicalRect{X: 5000, Y: 5000, Width: 10, Height: 10}, geometry.ErrNoIntersection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.CaptureRegion(context.Background(), tt.region); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if n := backend.callCount(); n != 0 {
		t.Errorf("Expected no backend calls for invalid regions, got %d", n)
	}
}

func TestCaptureRegionHonorsCancelledContext(t *testing.T) {
	backend := dualBackend()
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.CaptureRegion(ctx, geometry.LogicalRect{X: 10, Y: 10, Width: 10, Height: 10}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if n := backend.callCount(); n != 0 {
		t.Errorf("Expected no backend calls, got %d", n)
	}
}

func TestHandleMonitorsChangedSwapsTransform(t *testing.T) {
	backend := newFakeBackend(monitor("0", true, 0, 0, 1920, 1080, 1.0))
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	p, _ := o.LogicalToPhysical(geometry.LogicalPoint{X: 100, Y: 100})
	if p != (geometry.PhysicalPoint{X: 100, Y: 100}) {
		t.Fatalf("Expected identity before change, got %v", p)
	}

	// Display scaling changed to 200% through the backend callback
	backend.onChange([]geometry.MonitorInfo{monitor("0", true, 0, 0, 3840, 2160, 2.0)})

	p, _ = o.LogicalToPhysical(geometry.LogicalPoint{X: 100, Y: 100})
	if p != (geometry.PhysicalPoint{X: 200, Y: 200}) {
		t.Errorf("Expected (200,200) after change, got %v", p)
	}

	if err := o.HandleMonitorsChanged(nil); !errors.Is(err, geometry.ErrNoMonitors) {
		t.Errorf("Expected ErrNoMonitors for empty snapshot, got %v", err)
	}
	p, _ = o.LogicalToPhysical(geometry.LogicalPoint{X: 100, Y: 100})
	if p != (geometry.PhysicalPoint{X: 200, Y: 200}) {
		t.Errorf("Expected previous transform to stay, got %v", p)
	}
}

func TestMonitorsChangedEventSwapsTransform(t *testing.T) {
	bus := events.NewEventBus(4)
	defer bus.Stop()

	backend := newFakeBackend(monitor("0", true, 0, 0, 1920, 1080, 1.0))
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()), WithEventBus(bus))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	next := []geometry.MonitorInfo{
		monitor("0", true, 0, 0, 1920, 1080, 1.0),
		monitor("1", false, 1920, 0, 1920, 1080, 1.0),
	}
	ev := events.NewMonitorsChangedEvent(len(next), "0")
	ev.Data["monitors"] = next
	bus.Publish(ev)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tr, _ := o.Transform()
		if len(tr.Monitors()) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expected transform to pick up the second monitor")
}

func TestUnchangedLayoutKeepsTransform(t *testing.T) {
	bus := events.NewEventBus(4)

	backend := newFakeBackend(monitor("0", true, 0, 0, 1920, 1080, 1.0))
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()), WithEventBus(bus))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	before, _ := o.Transform()

	// the same change arriving through the backend and the bus
	next := []geometry.MonitorInfo{
		monitor("0", true, 0, 0, 1920, 1080, 1.0),
		monitor("1", false, 1920, 0, 1920, 1080, 1.0),
	}
	backend.onChange(next)
	swapped, _ := o.Transform()
	if swapped == before || len(swapped.Monitors()) != 2 {
		t.Fatalf("Expected a new two-monitor transform, got %d monitors", len(swapped.Monitors()))
	}

	ev := events.NewMonitorsChangedEvent(len(next), "0")
	ev.Data["monitors"] = next
	bus.Publish(ev)
	bus.Stop()

	if after, _ := o.Transform(); after != swapped {
		t.Error("Expected the repeated snapshot to keep the current transform")
	}
}

func TestRejectedMonitorsEventIsReported(t *testing.T) {
	bus := events.NewEventBus(4)
	reporter := logging.NewErrorReporter(quietLogger(), 10)

	backend := newFakeBackend(monitor("0", true, 0, 0, 1920, 1080, 1.0))
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()), WithEventBus(bus), WithErrorReporter(reporter))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	ev := events.NewMonitorsChangedEvent(0, "")
	ev.Data["monitors"] = []geometry.MonitorInfo{}
	bus.Publish(ev)
	bus.Stop()

	reports := reporter.GetErrorsByCategory(logging.ErrorCategoryGeometry, 10)
	if len(reports) != 1 {
		t.Fatalf("Expected 1 geometry report, got %d", len(reports))
	}
	if !errors.Is(reports[0].Error, geometry.ErrNoMonitors) {
		t.Errorf("Expected ErrNoMonitors, got %v", reports[0].Error)
	}

	tr, _ := o.Transform()
	if len(tr.Monitors()) != 1 {
		t.Errorf("Expected previous transform to stay, got %d monitors", len(tr.Monitors()))
	}

	// the backend callback path reports the same way
	backend.onChange(nil)
	if n := len(reporter.GetErrorsByCategory(logging.ErrorCategoryGeometry, 10)); n != 2 {
		t.Errorf("Expected 2 geometry reports, got %d", n)
	}
}

func TestMonitorsForOverlayOrder(t *testing.T) {
	backend := newFakeBackend(
		monitor("right", false, 1920, -500, 1920, 1080, 1.0),
		monitor("left", false, -1920, 0, 1920, 1080, 1.0),
		monitor("main", true, 0, 0, 1920, 1080, 1.0),
		monitor("below", false, 1920, 580, 1920, 1080, 1.0),
	)
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	got, err := o.MonitorsForOverlay()
	if err != nil {
		t.Fatalf("MonitorsForOverlay failed: %v", err)
	}

	want := []string{"main", "left", "right", "below"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestCloseRejectsLaterCalls(t *testing.T) {
	backend := dualBackend()
	o, err := NewOrchestrator(backend, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !backend.closed {
		t.Error("Expected backend to be closed")
	}

	if _, err := o.CaptureRegion(context.Background(), geometry.LogicalRect{Width: 10, Height: 10}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from CaptureRegion, got %v", err)
	}
	if _, err := o.Capabilities(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Capabilities, got %v", err)
	}
	if err := o.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from second Close, got %v", err)
	}
}

func TestOptionsApplyInOrder(t *testing.T) {
	opts := buildOptions(DefaultOptions(), []Option{WithCursor(true), WithTimeout(0), WithHDR(true)})
	if !opts.ShowCursor || opts.Timeout != 0 || !opts.HDR {
		t.Errorf("Unexpected options: %+v", opts)
	}
}
