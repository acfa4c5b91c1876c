package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"jordanella.com/regioncap/internal/capture"
	"jordanella.com/regioncap/internal/config"
	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/history"
	"jordanella.com/regioncap/internal/logging"
	"jordanella.com/regioncap/internal/monitor"
	"jordanella.com/regioncap/internal/platform"
)

const usage = `Usage: regioncap [-config file] [-env file] <command> [flags]

Commands:
  monitors    list monitors with physical and logical bounds
  region      capture a logical region to PNG
  scroll      scroll a window and stitch the frames to PNG
  history     show recent captures, prune or vacuum the store
  roundtrip   report logical/physical round-trip error per monitor
`

func main() {
	configPath := flag.String("config", "", "Path to config file (.yaml, .yml or .ini)")
	envPath := flag.String("env", "", "Path to a .env file with REGIONCAP_* overrides")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath, *envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "history":
		err = runHistory(ctx, cfg, args)
	case "monitors", "region", "scroll", "roundtrip":
		err = runWithApp(ctx, cfg, cmd, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func loadConfig(path, envPath string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, envPath); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// app holds the long-lived components shared by the capture commands
type app struct {
	cfg         *config.Config
	logger      *logging.Logger
	bus         *events.DefaultEventBus
	eventLogger *logging.EventLogger
	reporter    *logging.ErrorReporter
	backend     *platform.ScreenshotBackend
	orch        *capture.Orchestrator
	watcher     *monitor.Watcher
	db          *history.DB
}

func newApp(cfg *config.Config) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger("regioncap").SetMinLevel(level)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		bus:      events.NewEventBus(100),
		reporter: logging.NewErrorReporter(logger.Named("Errors"), 100),
	}
	a.bus.SetDiagnostics(func(format string, args ...interface{}) {
		logger.Named("EventBus").Warn(fmt.Sprintf(format, args...))
	})

	if cfg.Logging.EventLog {
		a.eventLogger, err = logging.NewEventLogger(a.bus, cfg.Logging.Dir)
		if err != nil {
			a.close()
			return nil, err
		}
		logger.Debug("Writing events to " + a.eventLogger.Path())
	}

	if cfg.History.Enabled {
		if a.db, err = openHistory(cfg, logger); err != nil {
			a.close()
			return nil, err
		}
		a.db.SubscribeCaptures(a.bus)
	}

	a.backend = platform.NewScreenshotBackend(cfg.Monitors.ScaleOverrides, logger.Named("ScreenshotBackend"))

	a.orch, err = capture.NewOrchestrator(a.backend,
		capture.WithLogger(logger.Named("Orchestrator")),
		capture.WithEventBus(a.bus),
		capture.WithErrorReporter(a.reporter),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.watcher = monitor.NewWatcher(a.backend).
		WithInterval(cfg.PollInterval()).
		WithEventBus(a.bus).
		WithLogger(logger.Named("MonitorWatcher")).
		WithErrorCallback(func(err error) {
			a.reporter.ReportError(logging.ErrorCategoryPlatform, logging.ErrorSeverityMedium,
				"MonitorWatcher", "monitor enumeration failed", err)
		})

	if err := a.watcher.Start(); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func openHistory(cfg *config.Config, logger *logging.Logger) (*history.DB, error) {
	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	db.WithLogger(logger.Named("History"))

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	// the orchestrator owns the backend once created
	if a.orch != nil {
		a.orch.Close()
	} else if a.backend != nil {
		a.backend.Close()
	}

	// stop the bus before closing its subscribers
	a.bus.Stop()

	if a.eventLogger != nil {
		a.eventLogger.Close()
	}
	if a.db != nil {
		a.db.Close()
	}

	stats := a.reporter.GetErrorStats()
	if stats["total"] > 0 {
		a.logger.WarnWithContext("Tolerated errors during run", map[string]interface{}{
			"total":       stats["total"],
			"recoverable": stats["recoverable"],
		})
	}
}

func runWithApp(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "monitors":
		return a.runMonitors(args)
	case "region":
		return a.runRegion(ctx, args)
	case "scroll":
		return a.runScroll(ctx, args)
	case "roundtrip":
		return a.runRoundTrip(args)
	}
	return fmt.Errorf("unknown command %s", cmd)
}
