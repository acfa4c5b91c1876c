package scrolling

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
	"jordanella.com/regioncap/internal/pixels"
)

// stripes builds an image whose row y has a color unique to seed+y
func stripes(width, height, seed int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		c := color.RGBA{R: uint8(seed + y), G: uint8((seed + y) >> 8), B: uint8((seed + y) * 7), A: 255}
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// document simulates a scrollable window: the screen shows viewport rows
// starting at pos, and each scroll moves pos down by step.
type document struct {
	mu        sync.Mutex
	page      *image.RGBA
	viewport  int
	step      int
	pos       int
	scrolls   int
	toTop     int
	bottomAt  int // scroll count at which the bar reports bottom, 0 = never
	activated []uintptr
}

func newDocument(width, height, viewport, step int) *document {
	return &document{page: stripes(width, height, 0), viewport: viewport, step: step}
}

func (d *document) CaptureRect(ctx context.Context, rect geometry.PhysicalRect) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	width := d.page.Bounds().Dx()
	sub := d.page.SubImage(image.Rect(0, d.pos, width, d.pos+d.viewport)).(*image.RGBA)
	return cloneRGBA(sub), nil
}

func (d *document) ScrollWindow(ctx context.Context, handle uintptr, method ScrollMethod, amount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scrolls++
	d.pos = min(d.pos+d.step, d.page.Bounds().Dy()-d.viewport)
	return nil
}

func (d *document) ScrollToTop(ctx context.Context, handle uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.toTop++
	d.pos = 0
	return nil
}

func (d *document) ScrollBarInfo(handle uintptr) (ScrollBarInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bottomAt == 0 {
		return ScrollBarInfo{}, false
	}
	info := ScrollBarInfo{Position: 0, Min: 0, Max: 100, PageSize: 10}
	if d.scrolls >= d.bottomAt {
		info.Position = 90
	}
	return info, true
}

func (d *document) ActivateWindow(handle uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.activated = append(d.activated, handle)
	return nil
}

// scripted returns frames from a list, then nil
type scripted struct {
	frames []*image.RGBA
	calls  int
	err    error
}

func (s *scripted) CaptureRect(ctx context.Context, rect geometry.PhysicalRect) (*image.RGBA, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.frames) {
		return nil, nil
	}
	f := s.frames[s.calls]
	s.calls++
	return f, nil
}

type recorderFunc func(context.Context, Session) error

func (f recorderFunc) RecordSession(ctx context.Context, s Session) error { return f(ctx, s) }

func newTestManager(t *testing.T, screen ScreenCapturer, doc *document, opts ...ManagerOption) *Manager {
	t.Helper()

	opts = append([]ManagerOption{WithLogger(logging.NewLogger("test").SetOutput(&bytes.Buffer{}))}, opts...)
	m, err := NewManager(screen, doc, doc, opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return m
}

func testRequest() Request {
	return NewRequest(0x1234, geometry.NewPhysicalRect(0, 0, 120, 100))
}

func TestNewManagerRequiresServices(t *testing.T) {
	doc := newDocument(10, 10, 10, 1)
	if _, err := NewManager(nil, doc, doc); !errors.Is(err, ErrNilScreen) {
		t.Errorf("Expected ErrNilScreen, got %v", err)
	}
	if _, err := NewManager(doc, nil, doc); !errors.Is(err, ErrNilScroller) {
		t.Errorf("Expected ErrNilScroller, got %v", err)
	}
	if _, err := NewManager(doc, doc, nil); !errors.Is(err, ErrNilActivator) {
		t.Errorf("Expected ErrNilActivator, got %v", err)
	}
}

func TestCaptureStopsOnIdenticalFrames(t *testing.T) {
	doc := newDocument(120, 400, 100, 0)
	m := newTestManager(t, doc, doc)

	result := m.Capture(context.Background(), testRequest())

	if result.FramesCaptured != 2 {
		t.Errorf("Expected 2 frames, got %d", result.FramesCaptured)
	}
	if result.Status != StatusSuccessful {
		t.Errorf("Expected Successful, got %s", result.Status)
	}
	if result.Reason != StopIdenticalFrame {
		t.Errorf("Expected identical_frame, got %s", result.Reason)
	}
	if h := result.Image.Bounds().Dy(); h != 100 {
		t.Errorf("Expected height 100, got %d", h)
	}
	if len(doc.activated) != 1 || doc.activated[0] != 0x1234 {
		t.Errorf("Expected window to be activated once, got %v", doc.activated)
	}
}

func TestCaptureStitchesScrolledDocument(t *testing.T) {
	doc := newDocument(120, 400, 100, 60)

	var heights []int
	req := testRequest()
	req.Progress = func(p Progress) { heights = append(heights, p.ResultHeight) }

	m := newTestManager(t, doc, doc)
	result := m.Capture(context.Background(), req)

	if result.Status != StatusSuccessful || result.Reason != StopIdenticalFrame {
		t.Fatalf("Expected Successful/identical_frame, got %s/%s", result.Status, result.Reason)
	}
	if result.FramesCaptured != 7 {
		t.Errorf("Expected 7 frames, got %d", result.FramesCaptured)
	}

	// each step adds currentHeight - overlap = 100 - 40 rows
	want := []int{100, 160, 220, 280, 340, 400, 400}
	if len(heights) != len(want) {
		t.Fatalf("Expected %d progress reports, got %v", len(want), heights)
	}
	for i := range want {
		if heights[i] != want[i] {
			t.Errorf("Report %d: expected height %d, got %d", i, want[i], heights[i])
		}
	}

	if !pixels.Identical(pixels.FromRGBA(result.Image), pixels.FromRGBA(doc.page)) {
		t.Error("Expected stitched result to reproduce the document without duplicated rows")
	}
}

func TestCaptureStopsWhenHeightStopsGrowing(t *testing.T) {
	const width, height = 16, 32760

	var frames []*image.RGBA
	for i := 0; i < 6; i++ {
		frames = append(frames, stripes(width, height, i))
	}
	screen := &scripted{frames: frames}
	doc := newDocument(width, 10, 10, 0)

	m := newTestManager(t, screen, doc)
	result := m.Capture(context.Background(), testRequest())

	if result.Reason != StopNoProgress {
		t.Fatalf("Expected no_progress, got %s", result.Reason)
	}
	// frame 2 grows to the cap, frames 3-5 add nothing
	if result.FramesCaptured != 5 {
		t.Errorf("Expected 5 frames, got %d", result.FramesCaptured)
	}
	if h := result.Image.Bounds().Dy(); h != MaxResultHeight {
		t.Errorf("Expected height capped at %d, got %d", MaxResultHeight, h)
	}
	if result.Status != StatusFailed {
		t.Errorf("Expected Failed with no overlaps, got %s", result.Status)
	}
}

func TestCaptureStopsAtScrollBarBottom(t *testing.T) {
	doc := newDocument(120, 1000, 100, 60)
	doc.bottomAt = 2

	m := newTestManager(t, doc, doc)
	result := m.Capture(context.Background(), testRequest())

	if result.Reason != StopScrollBarBottom {
		t.Fatalf("Expected scrollbar_bottom, got %s", result.Reason)
	}
	if result.FramesCaptured != 3 {
		t.Errorf("Expected 3 frames, got %d", result.FramesCaptured)
	}
	if h := result.Image.Bounds().Dy(); h != 220 {
		t.Errorf("Expected the last frame to be stitched (height 220), got %d", h)
	}
}

func TestCaptureCancellationKeepsPartialImage(t *testing.T) {
	doc := newDocument(120, 1000, 100, 60)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := testRequest()
	req.Progress = func(p Progress) {
		if p.FramesCaptured == 2 {
			cancel()
		}
	}

	m := newTestManager(t, doc, doc)
	result := m.Capture(ctx, req)

	if result.Status != StatusFailed || result.Reason != StopCancelled {
		t.Fatalf("Expected Failed/cancelled, got %s/%s", result.Status, result.Reason)
	}
	if result.FramesCaptured != 2 {
		t.Errorf("Expected 2 frames, got %d", result.FramesCaptured)
	}
	if result.Image == nil || result.Image.Bounds().Dy() != 160 {
		t.Errorf("Expected partial image of height 160, got %v", result.Image)
	}
}

func TestCaptureFrameLimit(t *testing.T) {
	doc := newDocument(120, 6100, 100, 60)

	req := testRequest()
	req.MaxFrames = 5

	m := newTestManager(t, doc, doc)
	result := m.Capture(context.Background(), req)

	if result.Reason != StopFrameLimit || result.FramesCaptured != 5 {
		t.Fatalf("Expected frame_limit after 5 frames, got %s after %d", result.Reason, result.FramesCaptured)
	}
	if h := result.Image.Bounds().Dy(); h != 340 {
		t.Errorf("Expected height 340, got %d", h)
	}
}

func TestCaptureReusesLastOffsetWhenMatchFails(t *testing.T) {
	screen := &scripted{frames: []*image.RGBA{
		stripes(120, 100, 0),
		stripes(120, 100, 60),
		stripes(120, 100, 5000),
	}}
	doc := newDocument(120, 10, 10, 0)

	m := newTestManager(t, screen, doc)
	result := m.Capture(context.Background(), testRequest())

	if result.Status != StatusPartiallySuccessful {
		t.Errorf("Expected PartiallySuccessful, got %s", result.Status)
	}
	if result.Reason != StopCaptureFailed {
		t.Errorf("Expected capture_failed when frames run out, got %s", result.Reason)
	}
	if h := result.Image.Bounds().Dy(); h != 220 {
		t.Errorf("Expected 160 + 60 reused rows, got %d", h)
	}
}

func TestCaptureAppendsHalfFrameWithoutHistory(t *testing.T) {
	screen := &scripted{frames: []*image.RGBA{
		stripes(120, 100, 0),
		stripes(120, 100, 5000),
		// overlaps the 10 last appended rows; status must stay Failed
		stripes(120, 100, 5090),
	}}
	doc := newDocument(120, 10, 10, 0)

	m := newTestManager(t, screen, doc)
	result := m.Capture(context.Background(), testRequest())

	if result.Status != StatusFailed {
		t.Errorf("Expected Failed, got %s", result.Status)
	}
	if h := result.Image.Bounds().Dy(); h != 240 {
		t.Errorf("Expected 100 + 50 + 90 rows, got %d", h)
	}
}

func TestCaptureWithoutAnyFrame(t *testing.T) {
	screen := &scripted{err: errors.New("display asleep")}
	doc := newDocument(120, 10, 10, 0)

	m := newTestManager(t, screen, doc)
	result := m.Capture(context.Background(), testRequest())

	if result.Image != nil || result.FramesCaptured != 0 {
		t.Errorf("Expected no image, got %d frames", result.FramesCaptured)
	}
	if result.Status != StatusFailed || result.Reason != StopCaptureFailed {
		t.Errorf("Expected Failed/capture_failed, got %s/%s", result.Status, result.Reason)
	}
}

func TestCapturePreludeDelays(t *testing.T) {
	doc := newDocument(120, 400, 100, 0)
	doc.pos = 200

	m := newTestManager(t, doc, doc)
	var waits []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	req := testRequest()
	req.AutoScrollTop = true
	req.StartDelay = 120 * time.Millisecond
	req.ScrollDelay = 0

	m.Capture(context.Background(), req)

	if doc.toTop != 1 {
		t.Errorf("Expected one scroll to top, got %d", doc.toTop)
	}
	if len(waits) < 4 {
		t.Fatalf("Expected prelude and settle waits, got %v", waits)
	}
	want := []time.Duration{activationDelay, 120 * time.Millisecond, 120 * time.Millisecond, minSettleDelay}
	for i, w := range want {
		if waits[i] != w {
			t.Errorf("Wait %d: expected %v, got %v", i, w, waits[i])
		}
	}
}

func TestCaptureRecordsAndPublishes(t *testing.T) {
	doc := newDocument(120, 400, 100, 60)

	bus := events.NewEventBus(64)
	defer bus.Stop()
	completed := make(chan events.Event, 1)
	bus.Subscribe(events.EventTypeScrollCompleted, func(ev events.Event) { completed <- ev })

	var recorded []Session
	rec := recorderFunc(func(ctx context.Context, s Session) error {
		recorded = append(recorded, s)
		return nil
	})

	m := newTestManager(t, doc, doc, WithEventBus(bus), WithRecorder(rec))
	m.Capture(context.Background(), testRequest())

	if len(recorded) != 1 {
		t.Fatalf("Expected one recorded session, got %d", len(recorded))
	}
	if recorded[0].Height != 400 || recorded[0].FramesCaptured != 7 || recorded[0].Width != 120 {
		t.Errorf("Unexpected session: %+v", recorded[0])
	}

	select {
	case ev := <-completed:
		if ev.Data["reason"] != string(StopIdenticalFrame) {
			t.Errorf("Expected reason identical_frame, got %v", ev.Data["reason"])
		}
	case <-time.After(2 * time.Second):
		t.Error("Expected scroll.completed event")
	}
}

func TestStatusDowngradeNeverImproves(t *testing.T) {
	s := StatusSuccessful
	s = s.downgrade(StatusPartiallySuccessful)
	s = s.downgrade(StatusSuccessful)
	if s != StatusPartiallySuccessful {
		t.Errorf("Expected PartiallySuccessful, got %s", s)
	}
	s = s.downgrade(StatusFailed).downgrade(StatusPartiallySuccessful)
	if s != StatusFailed {
		t.Errorf("Expected Failed, got %s", s)
	}
}

func TestScrollBarInfoIsAtBottom(t *testing.T) {
	tests := []struct {
		info ScrollBarInfo
		want bool
	}{
		{ScrollBarInfo{Position: 0, Min: 0, Max: 100, PageSize: 20}, false},
		{ScrollBarInfo{Position: 80, Min: 0, Max: 100, PageSize: 20}, true},
		{ScrollBarInfo{Position: 90, Min: 0, Max: 100, PageSize: 20}, true},
		{ScrollBarInfo{Position: 0, Min: 0, Max: 0, PageSize: 0}, false},
	}

	for _, tt := range tests {
		if got := tt.info.IsAtBottom(); got != tt.want {
			t.Errorf("%+v: expected %v, got %v", tt.info, tt.want, got)
		}
	}
}

func TestParseScrollMethod(t *testing.T) {
	for _, m := range []ScrollMethod{ScrollMouseWheel, ScrollDownArrow, ScrollPageDown, ScrollMessage} {
		got, err := ParseScrollMethod(m.String())
		if err != nil || got != m {
			t.Errorf("ParseScrollMethod(%q): got %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseScrollMethod("sideways"); err == nil {
		t.Error("Expected error for unknown method")
	}
}

func TestRequestNormalized(t *testing.T) {
	r := Request{MaxFrames: 500, ScrollAmount: -1, ScrollDelay: -time.Second}.normalized()
	if r.MaxFrames != MaxFrames || r.ScrollAmount != DefaultScrollAmount || r.ScrollDelay != 0 {
		t.Errorf("Unexpected normalized request: %+v", r)
	}
}
