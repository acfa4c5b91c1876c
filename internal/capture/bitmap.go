package capture

import (
	"image"

	"jordanella.com/regioncap/internal/geometry"
)

// Bitmap is a captured image together with the physical rectangle it
// covers and the scale factor of its monitor at capture time. The caller
// owns it and should Release it once the pixels have been consumed.
type Bitmap struct {
	Image       *image.RGBA
	Region      geometry.PhysicalRect
	ScaleFactor float64
}

// NewBitmap wraps img as the capture of region
func NewBitmap(img *image.RGBA, region geometry.PhysicalRect, scale float64) *Bitmap {
	return &Bitmap{Image: img, Region: region, ScaleFactor: scale}
}

// Width of the pixel buffer, 0 once released
func (b *Bitmap) Width() int {
	if b == nil || b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dx()
}

// Height of the pixel buffer, 0 once released
func (b *Bitmap) Height() int {
	if b == nil || b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dy()
}

// Empty reports whether the bitmap holds no pixels
func (b *Bitmap) Empty() bool {
	return b.Width() == 0 || b.Height() == 0
}

// Release drops the pixel buffer
func (b *Bitmap) Release() {
	if b != nil {
		b.Image = nil
	}
}
