package config

import (
	"errors"
	"fmt"
	"time"

	"jordanella.com/regioncap/internal/capture"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
	"jordanella.com/regioncap/internal/scrolling"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings for captures, scrolling, monitor polling,
// logging and capture history
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Scrolling ScrollingConfig `yaml:"scrolling"`
	Monitors  MonitorsConfig  `yaml:"monitors"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
}

type CaptureConfig struct {
	ShowCursor bool          `yaml:"show_cursor"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ScrollingConfig struct {
	Method               string `yaml:"method"`
	Amount               int    `yaml:"amount"`
	StartDelayMs         int    `yaml:"start_delay_ms"`
	ScrollDelayMs        int    `yaml:"scroll_delay_ms"`
	AutoScrollTop        bool   `yaml:"auto_scroll_top"`
	AutoIgnoreBottomEdge bool   `yaml:"auto_ignore_bottom_edge"`
	MaxFrames            int    `yaml:"max_frames"`
}

type MonitorsConfig struct {
	// ScaleOverrides maps a display index to its scale factor
	ScaleOverrides map[int]float64 `yaml:"scale_overrides"`
	PollIntervalMs int             `yaml:"poll_interval_ms"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Dir      string `yaml:"dir"`
	EventLog bool   `yaml:"event_log"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NewDefaultConfig returns the configuration used when no file is given
func NewDefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			ShowCursor: false,
			Timeout:    capture.DefaultOptions().Timeout,
		},
		Scrolling: ScrollingConfig{
			Method:               scrolling.ScrollMouseWheel.String(),
			Amount:               scrolling.DefaultScrollAmount,
			StartDelayMs:         int(scrolling.DefaultStartDelay / time.Millisecond),
			ScrollDelayMs:        int(scrolling.DefaultScrollDelay / time.Millisecond),
			AutoScrollTop:        false,
			AutoIgnoreBottomEdge: true,
			MaxFrames:            scrolling.MaxFrames,
		},
		Monitors: MonitorsConfig{
			ScaleOverrides: make(map[int]float64),
			PollIntervalMs: 2000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Dir:      "logs",
			EventLog: false,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "regioncap.db",
		},
	}
}

// Validate checks every section and returns all problems joined
func (c *Config) Validate() error {
	var errs []error

	if c.Capture.Timeout < 0 {
		errs = append(errs, fmt.Errorf("capture timeout must not be negative, got %s", c.Capture.Timeout))
	}

	if _, err := scrolling.ParseScrollMethod(c.Scrolling.Method); err != nil {
		errs = append(errs, err)
	}
	if c.Scrolling.Amount < 1 {
		errs = append(errs, fmt.Errorf("scroll amount must be at least 1, got %d", c.Scrolling.Amount))
	}
	if c.Scrolling.StartDelayMs < 0 || c.Scrolling.ScrollDelayMs < 0 {
		errs = append(errs, errors.New("scroll delays must not be negative"))
	}
	if c.Scrolling.MaxFrames < 1 || c.Scrolling.MaxFrames > scrolling.MaxFrames {
		errs = append(errs, fmt.Errorf("max frames must be between 1 and %d, got %d", scrolling.MaxFrames, c.Scrolling.MaxFrames))
	}

	for idx, scale := range c.Monitors.ScaleOverrides {
		if idx < 0 || scale <= 0 {
			errs = append(errs, fmt.Errorf("invalid scale override %d=%v", idx, scale))
		}
	}
	if c.Monitors.PollIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("poll interval must not be negative, got %d", c.Monitors.PollIntervalMs))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history path is required when history is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// CaptureOptions converts the capture section to orchestrator options
func (c *Config) CaptureOptions() []capture.Option {
	opts := []capture.Option{capture.WithCursor(c.Capture.ShowCursor)}
	if c.Capture.Timeout > 0 {
		opts = append(opts, capture.WithTimeout(c.Capture.Timeout))
	}
	return opts
}

// ScrollRequest builds a scrolling request for region using the
// scrolling section
func (c *Config) ScrollRequest(handle uintptr, region geometry.PhysicalRect) (scrolling.Request, error) {
	method, err := scrolling.ParseScrollMethod(c.Scrolling.Method)
	if err != nil {
		return scrolling.Request{}, err
	}

	req := scrolling.NewRequest(handle, region)
	req.Method = method
	req.ScrollAmount = c.Scrolling.Amount
	req.StartDelay = time.Duration(c.Scrolling.StartDelayMs) * time.Millisecond
	req.ScrollDelay = time.Duration(c.Scrolling.ScrollDelayMs) * time.Millisecond
	req.AutoScrollTop = c.Scrolling.AutoScrollTop
	req.AutoIgnoreBottomEdge = c.Scrolling.AutoIgnoreBottomEdge
	req.MaxFrames = c.Scrolling.MaxFrames
	return req, nil
}

// PollInterval returns the monitor poll interval, zero meaning the
// watcher default
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitors.PollIntervalMs) * time.Millisecond
}
