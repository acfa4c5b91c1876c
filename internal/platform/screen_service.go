package platform

import (
	"context"
	"image"

	"jordanella.com/regioncap/internal/capture"
	"jordanella.com/regioncap/internal/geometry"
)

// regionCapturer is satisfied by *capture.Orchestrator
type regionCapturer interface {
	CapturePhysicalRegion(ctx context.Context, region geometry.PhysicalRect, opts ...capture.Option) (*capture.Bitmap, error)
}

// ScreenService adapts the capture orchestrator to scrolling.ScreenCapturer,
// so scrolling frames get the same validation and multi-monitor handling
// as region captures.
type ScreenService struct {
	capturer regionCapturer
	opts     []capture.Option
}

// NewScreenService creates a screen service using opts for every frame
func NewScreenService(capturer regionCapturer, opts ...capture.Option) *ScreenService {
	return &ScreenService{capturer: capturer, opts: opts}
}

// CaptureRect captures rect and hands over ownership of its pixels
func (s *ScreenService) CaptureRect(ctx context.Context, rect geometry.PhysicalRect) (*image.RGBA, error) {
	bitmap, err := s.capturer.CapturePhysicalRegion(ctx, rect, s.opts...)
	if err != nil {
		return nil, err
	}
	img := bitmap.Image
	bitmap.Release()
	return img, nil
}
