package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"jordanella.com/regioncap/internal/config"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
	"jordanella.com/regioncap/internal/platform"
	"jordanella.com/regioncap/internal/scrolling"
)

// regionFlags registers the logical region flags shared by region and scroll
func regionFlags(fs *flag.FlagSet) *geometry.LogicalRect {
	r := &geometry.LogicalRect{}
	fs.Float64Var(&r.X, "x", 0, "Logical X of the region")
	fs.Float64Var(&r.Y, "y", 0, "Logical Y of the region")
	fs.Float64Var(&r.Width, "w", 0, "Logical width of the region")
	fs.Float64Var(&r.Height, "h", 0, "Logical height of the region")
	return r
}

func (a *app) runMonitors(args []string) error {
	fs := flag.NewFlagSet("monitors", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := a.orch.Transform()
	if err != nil {
		return err
	}
	monitors, err := a.orch.MonitorsForOverlay()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIMARY\tSCALE\tPHYSICAL\tLOGICAL")
	for _, m := range monitors {
		fmt.Fprintf(w, "%s\t%v\t%.2f\t%s\t%s\n", m.ID, m.IsPrimary, m.ScaleFactor, m.Bounds, t.MonitorLogicalBounds(m))
	}
	fmt.Fprintf(w, "desktop\t\t\t%s\t%s\n", t.VirtualDesktop(), t.VirtualDesktopLogical())
	return w.Flush()
}

func (a *app) runRegion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("region", flag.ExitOnError)
	region := regionFlags(fs)
	out := fs.String("o", "region.png", "Output PNG path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bitmap, err := a.orch.CaptureRegion(ctx, *region, a.cfg.CaptureOptions()...)
	if err != nil {
		return err
	}
	defer bitmap.Release()

	if err := writePNG(*out, bitmap.Image); err != nil {
		return err
	}

	a.logger.InfoWithContext("Region captured", map[string]interface{}{
		"physical": bitmap.Region.String(),
		"scale":    bitmap.ScaleFactor,
		"output":   *out,
	})
	return nil
}

func (a *app) runScroll(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scroll", flag.ExitOnError)
	region := regionFlags(fs)
	handle := fs.Uint64("window", 0, "Window handle (HWND on Windows, pid elsewhere)")
	title := fs.String("title", "", "Find the window by title instead of -window")
	method := fs.String("method", "", "Scroll method: wheel, down, pagedown or message")
	amount := fs.Int("amount", 0, "Scroll amount per step")
	out := fs.String("o", "scroll.png", "Output PNG path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *method != "" {
		a.cfg.Scrolling.Method = *method
	}
	if *amount > 0 {
		a.cfg.Scrolling.Amount = *amount
	}

	var (
		physical geometry.PhysicalRect
		err      error
	)
	if *title != "" {
		win, err := platform.FindWindow(*title)
		if err != nil {
			return err
		}
		*handle = uint64(win.Handle)
		physical = win.Bounds
		a.logger.InfoWithContext("Window found", map[string]interface{}{
			"title":  win.Title,
			"bounds": win.Bounds.String(),
		})
	}

	// an explicit region overrides the window bounds
	if region.Width > 0 && region.Height > 0 {
		if physical, err = a.orch.LogicalRectToPhysical(*region); err != nil {
			return err
		}
	}
	req, err := a.cfg.ScrollRequest(uintptr(*handle), physical)
	if err != nil {
		return err
	}

	progressLog := a.logger.Named("Progress")
	req.Progress = func(p scrolling.Progress) {
		progressLog.DebugWithContext("Frame stitched", map[string]interface{}{
			"frames": p.FramesCaptured,
			"height": p.ResultHeight,
			"status": p.Status.String(),
		})
	}

	input := platform.NewInput(a.logger.Named("Input"))
	opts := []scrolling.ManagerOption{
		scrolling.WithLogger(a.logger.Named("ScrollingCapture")),
		scrolling.WithEventBus(a.bus),
		scrolling.WithErrorReporter(a.reporter),
	}
	if a.db != nil {
		opts = append(opts, scrolling.WithRecorder(a.db))
	}

	manager, err := scrolling.NewManager(platform.NewScreenService(a.orch, a.cfg.CaptureOptions()...), input, input, opts...)
	if err != nil {
		return err
	}

	result := manager.Capture(ctx, req)
	if result.Image == nil {
		return fmt.Errorf("no frames captured (%s)", result.Reason)
	}
	if err := writePNG(*out, result.Image); err != nil {
		return err
	}

	a.logger.InfoWithContext("Scrolling capture saved", map[string]interface{}{
		"status": result.Status.String(),
		"frames": result.FramesCaptured,
		"reason": string(result.Reason),
		"height": result.Image.Bounds().Dy(),
		"output": *out,
	})
	if result.Status == scrolling.StatusFailed {
		return errors.New("capture stopped before the end of the content, output may be incomplete")
	}
	return nil
}

func (a *app) runRoundTrip(args []string) error {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	steps := fs.Int("steps", 8, "Grid steps per axis on each monitor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", *steps)
	}

	t, err := a.orch.Transform()
	if err != nil {
		return err
	}

	n := *steps
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCALE\tPOINTS\tMAX ERROR\tWORST POINT")
	for _, m := range t.Monitors() {
		var (
			worst   float64
			worstAt geometry.PhysicalPoint
			checked int
			b       = m.Bounds
		)
		for i := 0; i <= n; i++ {
			for j := 0; j <= n; j++ {
				p := geometry.PhysicalPoint{
					X: b.X + (b.Width-1)*i/n,
					Y: b.Y + (b.Height-1)*j/n,
				}
				if e := t.RoundTripError(p); e > worst || checked == 0 {
					worst, worstAt = e, p
				}
				checked++
			}
		}
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%.3f\t(%d,%d)\n", m.ID, m.ScaleFactor, checked, worst, worstAt.X, worstAt.Y)
	}
	return w.Flush()
}

func runHistory(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of rows per table")
	prune := fs.Int("prune", 0, "Delete rows older than this many days before listing")
	vacuum := fs.Bool("vacuum", false, "Compact the database file (implied by -prune)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prune < 0 {
		return fmt.Errorf("prune must not be negative, got %d", *prune)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	db, err := openHistory(cfg, logging.NewLogger("regioncap").SetMinLevel(level))
	if err != nil {
		return err
	}
	defer db.Close()

	if *prune > 0 {
		removed, err := db.Prune(ctx, time.Now().AddDate(0, 0, -*prune))
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d rows older than %d days\n", removed, *prune)
	}
	if *prune > 0 || *vacuum {
		if err := db.Vacuum(ctx); err != nil {
			return err
		}
	}

	regions, err := db.RecentRegions(ctx, *limit)
	if err != nil {
		return err
	}
	sessions, err := db.RecentSessions(ctx, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REGION CAPTURES")
	fmt.Fprintln(w, "TIME\tREGION\tMONITORS\tDURATION\tERROR")
	for _, rc := range regions {
		errMsg := "-"
		if rc.Failed() {
			errMsg = *rc.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n", rc.CapturedAt.Local().Format("2006-01-02 15:04:05"),
			rc.Region, rc.MonitorsCaptured, rc.MonitorsRequested, rc.Duration, errMsg)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "SCROLL SESSIONS")
	fmt.Fprintln(w, "TIME\tREGION\tMETHOD\tFRAMES\tSIZE\tSTATUS\tREASON")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dx%d\t%s\t%s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Region, s.Method, s.FramesCaptured, s.ImageWidth, s.ImageHeight, s.Status, s.StopReason)
	}
	return w.Flush()
}

func writePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
