package scrolling

import (
	"context"
	"errors"
	"image"
	"time"

	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
	"jordanella.com/regioncap/internal/pixels"
)

const (
	// MaxFrames is the default and upper bound on frames per session
	MaxFrames = 100

	DefaultScrollAmount = 2
	DefaultStartDelay   = 300 * time.Millisecond
	DefaultScrollDelay  = 300 * time.Millisecond

	activationDelay = 200 * time.Millisecond
	minSettleDelay  = 50 * time.Millisecond

	noProgressPixels = 2
	noProgressLimit  = 3
)

var (
	ErrNilScreen    = errors.New("screen capturer is nil")
	ErrNilScroller  = errors.New("scroller is nil")
	ErrNilActivator = errors.New("window activator is nil")
)

// Request describes one scrolling capture
type Request struct {
	WindowHandle         uintptr
	Region               geometry.PhysicalRect
	Method               ScrollMethod
	ScrollAmount         int
	StartDelay           time.Duration
	ScrollDelay          time.Duration
	AutoScrollTop        bool
	AutoIgnoreBottomEdge bool
	MaxFrames            int
	Progress             func(Progress)
}

// NewRequest returns a request with the default settings for region
func NewRequest(handle uintptr, region geometry.PhysicalRect) Request {
	return Request{
		WindowHandle:         handle,
		Region:               region,
		Method:               ScrollMouseWheel,
		ScrollAmount:         DefaultScrollAmount,
		StartDelay:           DefaultStartDelay,
		ScrollDelay:          DefaultScrollDelay,
		AutoIgnoreBottomEdge: true,
		MaxFrames:            MaxFrames,
	}
}

func (r Request) normalized() Request {
	if r.ScrollAmount <= 0 {
		r.ScrollAmount = DefaultScrollAmount
	}
	if r.StartDelay < 0 {
		r.StartDelay = 0
	}
	if r.ScrollDelay < 0 {
		r.ScrollDelay = 0
	}
	if r.MaxFrames <= 0 || r.MaxFrames > MaxFrames {
		r.MaxFrames = MaxFrames
	}
	return r
}

// Manager runs the capture, scroll and stitch loop
type Manager struct {
	screen   ScreenCapturer
	scroller Scroller
	windows  WindowActivator

	logger   *logging.Logger
	reporter *logging.ErrorReporter
	bus      events.EventBus
	recorder Recorder

	sleep func(ctx context.Context, d time.Duration) error
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the manager logger
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEventBus publishes scroll.* events
func WithEventBus(bus events.EventBus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithRecorder stores every finished session
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithErrorReporter records stitch downgrades
func WithErrorReporter(reporter *logging.ErrorReporter) ManagerOption {
	return func(m *Manager) {
		m.reporter = reporter
	}
}

// NewManager creates a scrolling capture manager
func NewManager(screen ScreenCapturer, scroller Scroller, windows WindowActivator, opts ...ManagerOption) (*Manager, error) {
	switch {
	case screen == nil:
		return nil, ErrNilScreen
	case scroller == nil:
		return nil, ErrNilScroller
	case windows == nil:
		return nil, ErrNilActivator
	}

	m := &Manager{
		screen:   screen,
		scroller: scroller,
		windows:  windows,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewLogger("ScrollingCapture")
	}
	return m, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Capture activates the window, then captures, scrolls and stitches until
// the content stops changing. Cancellation returns the partial image with
// StatusFailed.
func (m *Manager) Capture(ctx context.Context, req Request) Result {
	req = req.normalized()
	started := time.Now()

	log := m.logger.WithContext(map[string]interface{}{
		"region": req.Region.String(),
		"method": req.Method.String(),
	})
	log.Info("Scrolling capture started")
	m.publish(events.NewScrollStartedEvent(req.Region.String(), req.Method.String()))

	result := m.run(ctx, req, log)
	result.Duration = time.Since(started)

	height := 0
	width := 0
	if result.Image != nil {
		width = result.Image.Bounds().Dx()
		height = result.Image.Bounds().Dy()
	}

	log.InfoWith("Scrolling capture finished", map[string]interface{}{
		"frames": result.FramesCaptured,
		"height": height,
		"status": result.Status.String(),
		"reason": string(result.Reason),
	})
	m.publish(events.NewScrollCompletedEvent(result.FramesCaptured, height, result.Status.String(), string(result.Reason)))

	if m.recorder != nil {
		session := Session{
			Region:         req.Region,
			Method:         req.Method,
			FramesCaptured: result.FramesCaptured,
			Width:          width,
			Height:         height,
			Status:         result.Status,
			Reason:         result.Reason,
			StartedAt:      started,
			Duration:       result.Duration,
		}
		// recorded even when ctx was cancelled
		if err := m.recorder.RecordSession(context.WithoutCancel(ctx), session); err != nil {
			log.Error("Failed to record scrolling session", err)
		}
	}

	return result
}

func (m *Manager) run(ctx context.Context, req Request, log *logging.ContextLogger) Result {
	result := Result{Status: StatusSuccessful}
	cancelled := func() Result {
		result.Status = StatusFailed
		result.Reason = StopCancelled
		return result
	}

	if err := m.windows.ActivateWindow(req.WindowHandle); err != nil {
		log.Warn("Window activation failed: " + err.Error())
	}
	if m.sleep(ctx, activationDelay) != nil {
		return cancelled()
	}

	if req.AutoScrollTop {
		if err := m.scroller.ScrollToTop(ctx, req.WindowHandle); err != nil {
			log.Warn("Scroll to top failed: " + err.Error())
		}
		if m.sleep(ctx, req.StartDelay) != nil {
			return cancelled()
		}
	}
	if m.sleep(ctx, req.StartDelay) != nil {
		return cancelled()
	}

	var (
		state      stitchState
		previous   *image.RGBA
		lastHeight int
		noProgress int
	)

	for result.FramesCaptured < req.MaxFrames {
		if ctx.Err() != nil {
			return cancelled()
		}
		iterationStart := time.Now()

		frame, err := m.screen.CaptureRect(ctx, req.Region)
		if err != nil || frame == nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			if err != nil {
				log.Error("Frame capture failed", err)
			} else {
				log.Warn("Frame capture returned no image")
			}
			result.Reason = StopCaptureFailed
			break
		}

		result.FramesCaptured++

		if previous == nil {
			result.Image = cloneRGBA(frame)
			previous = frame
			lastHeight = result.Image.Bounds().Dy()
			m.report(req, result, frame)
		} else {
			if pixels.Identical(pixels.FromRGBA(previous), pixels.FromRGBA(frame)) {
				log.Debug("Identical frames, end of content reached")
				m.report(req, result, frame)
				result.Reason = StopIdenticalFrame
				break
			}

			bar, barOK := m.scroller.ScrollBarInfo(req.WindowHandle)
			atBottom := barOK && bar.IsAtBottom()

			out := state.stitch(result.Image, frame, req.AutoIgnoreBottomEdge)
			result.Image = out.image
			result.Status = result.Status.downgrade(out.status)
			if out.status != StatusSuccessful {
				m.stitchDowngraded(result.FramesCaptured, out)
			}

			height := result.Image.Bounds().Dy()
			log.DebugWith("Frame stitched", map[string]interface{}{
				"frame":         result.FramesCaptured,
				"bottom_offset": out.bottomOffset,
				"run":           out.run,
				"new_rows":      out.newContent,
				"height":        height,
			})
			m.publish(events.NewScrollFrameEvent(result.FramesCaptured, height, out.status.String()))
			m.report(req, result, frame)

			if height <= lastHeight+noProgressPixels {
				noProgress++
				if noProgress >= noProgressLimit {
					log.Debug("Result height stopped growing")
					result.Reason = StopNoProgress
					break
				}
			} else {
				noProgress = 0
			}
			lastHeight = height
			previous = frame

			if atBottom {
				log.Debug("Scroll bar reports bottom")
				result.Reason = StopScrollBarBottom
				break
			}
		}

		if err := m.scroller.ScrollWindow(ctx, req.WindowHandle, req.Method, req.ScrollAmount); err != nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			log.Warn("Scroll failed: " + err.Error())
		}

		wait := max(minSettleDelay, req.ScrollDelay-time.Since(iterationStart))
		if m.sleep(ctx, wait) != nil {
			return cancelled()
		}
	}

	if result.Reason == "" {
		result.Reason = StopFrameLimit
	}
	if result.Image == nil {
		result.Status = StatusFailed
	}
	return result
}

func (m *Manager) report(req Request, result Result, frame *image.RGBA) {
	if req.Progress == nil {
		return
	}
	height := 0
	if result.Image != nil {
		height = result.Image.Bounds().Dy()
	}
	req.Progress(Progress{
		FramesCaptured: result.FramesCaptured,
		ResultHeight:   height,
		Status:         result.Status,
		Frame:          frame,
	})
}

func (m *Manager) stitchDowngraded(frame int, out stitchOutcome) {
	if m.reporter == nil {
		return
	}
	severity := logging.ErrorSeverityLow
	message := "no overlap found, reused last offset"
	if out.status == StatusFailed {
		severity = logging.ErrorSeverityMedium
		message = "no overlap found, appended half frame"
	}
	m.reporter.ReportErrorWithContext(logging.ErrorCategoryStitch, severity, "ScrollingCapture", message, nil,
		map[string]interface{}{"frame": frame, "new_rows": out.newContent})
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
