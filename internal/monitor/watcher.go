package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
)

// DefaultPollInterval between monitor enumerations
const DefaultPollInterval = 2 * time.Second

// Source enumerates the current monitors (usually a capture backend)
type Source interface {
	Monitors() ([]geometry.MonitorInfo, error)
}

// ChangeCallback is called with the new snapshot after a layout change
type ChangeCallback func(monitors []geometry.MonitorInfo)

// ErrorCallback is called when enumeration fails
type ErrorCallback func(err error)

// Watcher polls a Source and reports monitor configuration changes
type Watcher struct {
	source   Source
	bus      events.EventBus
	logger   *logging.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	last     []geometry.MonitorInfo
	onChange []ChangeCallback
	onError  ErrorCallback
	started  bool
	failures int
}

// NewWatcher creates a watcher for source
func NewWatcher(source Source) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		source:   source,
		logger:   logging.NewLogger("MonitorWatcher"),
		interval: DefaultPollInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithInterval sets the poll interval
func (w *Watcher) WithInterval(interval time.Duration) *Watcher {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithEventBus publishes monitors.changed events
func (w *Watcher) WithEventBus(bus events.EventBus) *Watcher {
	w.bus = bus
	return w
}

// WithLogger sets the watcher logger
func (w *Watcher) WithLogger(logger *logging.Logger) *Watcher {
	w.logger = logger
	return w
}

// WithErrorCallback sets the callback for enumeration failures
func (w *Watcher) WithErrorCallback(callback ErrorCallback) *Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = callback
	return w
}

// OnChange registers a change callback
func (w *Watcher) OnChange(callback ChangeCallback) *Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, callback)
	return w
}

// Start takes the baseline snapshot and begins polling
func (w *Watcher) Start() error {
	monitors, err := w.source.Monitors()
	if err != nil {
		return fmt.Errorf("initial monitor enumeration failed: %w", err)
	}

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.last = monitors
	w.mu.Unlock()

	w.wg.Add(1)
	go w.poll()

	w.logger.InfoWithContext("Monitor watcher started", map[string]interface{}{
		"monitors": len(monitors),
		"interval": w.interval.String(),
	})
	return nil
}

// Stop stops polling and waits for the poll goroutine to exit
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Snapshot returns the last observed monitors
func (w *Watcher) Snapshot() []geometry.MonitorInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]geometry.MonitorInfo, len(w.last))
	copy(out, w.last)
	return out
}

// ConsecutiveFailures returns how many polls in a row failed
func (w *Watcher) ConsecutiveFailures() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.failures
}

func (w *Watcher) poll() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check enumerates monitors once and fires callbacks when the layout
// differs from the previous snapshot
func (w *Watcher) Check() (bool, error) {
	monitors, err := w.source.Monitors()

	w.mu.Lock()
	if err != nil {
		w.failures++
		onError := w.onError
		w.mu.Unlock()

		w.logger.Error("Monitor enumeration failed", err)
		if onError != nil {
			onError(err)
		}
		return false, err
	}
	w.failures = 0

	if geometry.SameLayout(w.last, monitors) {
		w.mu.Unlock()
		return false, nil
	}

	w.last = monitors
	callbacks := make([]ChangeCallback, len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	primaryID := ""
	for _, m := range monitors {
		if m.IsPrimary {
			primaryID = m.ID
			break
		}
	}

	w.logger.InfoWithContext("Monitor configuration changed", map[string]interface{}{
		"monitors": len(monitors),
		"primary":  primaryID,
	})

	for _, cb := range callbacks {
		cb(monitors)
	}

	if w.bus != nil {
		ev := events.NewMonitorsChangedEvent(len(monitors), primaryID)
		ev.Data["monitors"] = monitors
		w.bus.Publish(ev)
	}

	return true, nil
}
