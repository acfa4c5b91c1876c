package capture

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/logging"
)

// monitorCapture is one slot of the multi-monitor fan-out
type monitorCapture struct {
	monitor geometry.MonitorInfo
	area    geometry.PhysicalRect
	bitmap  *Bitmap
	err     error
}

// stitch composites per-monitor captures into one bitmap covering target.
// Each source is released right after it has been copied. Slots that
// failed are reported and skipped; at least one must succeed.
func (o *Orchestrator) stitch(target geometry.PhysicalRect, slots []monitorCapture) (*Bitmap, int, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	var errs []error
	succeeded := 0

	for i := range slots {
		slot := &slots[i]

		if slot.err == nil && slot.bitmap.Empty() {
			slot.err = ErrEmptyCapture
		}
		if slot.err != nil {
			err := fmt.Errorf("monitor %s: %w", slot.monitor.ID, slot.err)
			errs = append(errs, err)
			o.monitorFailed(slot.monitor, err)
			slot.bitmap.Release()
			continue
		}

		dst := image.Rect(
			slot.area.X-target.X,
			slot.area.Y-target.Y,
			slot.area.X-target.X+slot.area.Width,
			slot.area.Y-target.Y+slot.area.Height,
		)
		src := slot.bitmap.Image
		draw.Draw(canvas, dst, src, src.Bounds().Min, draw.Src)
		slot.bitmap.Release()
		succeeded++
	}

	if succeeded == 0 {
		return nil, 0, fmt.Errorf("%w: %w", ErrNoValidCaptures, errors.Join(errs...))
	}

	return NewBitmap(canvas, target, slots[0].monitor.ScaleFactor), succeeded, nil
}

func (o *Orchestrator) monitorFailed(m geometry.MonitorInfo, err error) {
	o.logger.WarnWithContext("Monitor capture failed, continuing with remaining monitors", map[string]interface{}{
		"monitor": m.ID,
		"error":   err.Error(),
	})
	if o.reporter != nil {
		o.reporter.ReportErrorWithContext(logging.ErrorCategoryCapture, logging.ErrorSeverityMedium,
			"Orchestrator", "monitor capture failed", err, map[string]interface{}{"monitor": m.ID})
	}
	o.publish(events.NewCaptureMonitorFailedEvent(m.ID, err))
}
