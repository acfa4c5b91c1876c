package pixels

import (
	"bytes"
	"image"
)

// BytesPerPixel for the RGBA buffers handled here
const BytesPerPixel = 4

// MinOverlapRows is the shortest run of matching rows accepted as an overlap
const MinOverlapRows = 3

// Frame is a read-only view over a row-major pixel buffer
type Frame struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

// FromRGBA wraps an *image.RGBA without copying
func FromRGBA(img *image.RGBA) Frame {
	if img == nil {
		return Frame{}
	}
	b := img.Bounds()
	return Frame{
		Pix:    img.Pix,
		Stride: img.Stride,
		Width:  b.Dx(),
		Height: b.Dy(),
	}
}

// Row returns the bytes of row y between columns [from, from+count)
func (f Frame) Row(y, from, count int) []byte {
	start := y*f.Stride + from*BytesPerPixel
	return f.Pix[start : start+count*BytesPerPixel]
}

// Identical reports whether two frames have the same size and pixels
func Identical(a, b Frame) bool {
	if a.Width != b.Width || a.Height != b.Height {
		return false
	}
	if a.Stride == b.Stride && len(a.Pix) == len(b.Pix) {
		return bytes.Equal(a.Pix, b.Pix)
	}
	for y := 0; y < a.Height; y++ {
		if !bytes.Equal(a.Row(y, 0, a.Width), b.Row(y, 0, b.Width)) {
			return false
		}
	}
	return true
}

// SideMargin is the number of columns ignored at each row end so that
// scrollbars and gutters do not break row comparisons.
func SideMargin(width int) int {
	return max(5, min(width/3, 50))
}

// compareSpan returns the first column and column count compared for rows
// of two frames, or ok=false when the margins leave nothing to compare.
func compareSpan(a, b Frame, margin int) (from, count int, ok bool) {
	width := min(a.Width, b.Width)
	count = width - 2*margin
	if count <= 0 {
		return 0, 0, false
	}
	return margin, count, true
}

func rowsEqual(a Frame, ay int, b Frame, by int, from, count int) bool {
	return bytes.Equal(a.Row(ay, from, count), b.Row(by, from, count))
}

// BottomEdgeOffset counts trailing rows that are identical between the
// accumulated result and the current frame, scanning bottom-up and capped
// at a third of either height. These rows belong to a fixed, non-scrolling
// region (status bar, toolbar). When every row up to the cap matches, the
// area is treated as content and 0 is returned.
func BottomEdgeOffset(result, current Frame, margin int) int {
	from, count, ok := compareSpan(result, current, margin)
	if !ok {
		return 0
	}

	limit := min(result.Height/3, current.Height/3)
	for i := 0; i < limit; i++ {
		ry := result.Height - 1 - i
		cy := current.Height - 1 - i
		if !rowsEqual(result, ry, current, cy, from, count) {
			return i
		}
	}
	return 0
}

// Overlap describes where the top of a new frame joins the accumulated result
type Overlap struct {
	// Offset is how many rows above the usable bottom of the result the
	// matching run starts.
	Offset int
	// Run is the number of consecutive matching rows.
	Run int
}

// FindOverlap searches for the longest run of rows where the top of current
// repeats rows of result ending bottomOffset rows above its bottom.
// Candidate offsets are 1..min(current.Height/2, result.Height)-1. ok is false
// when the best run is shorter than MinOverlapRows.
func FindOverlap(result, current Frame, margin, bottomOffset int) (Overlap, bool) {
	from, count, ok := compareSpan(result, current, margin)
	if !ok {
		return Overlap{}, false
	}

	usable := result.Height - bottomOffset
	currentRows := current.Height - bottomOffset
	limit := min(current.Height/2, result.Height)

	best := Overlap{}
	for offset := 1; offset < limit; offset++ {
		start := usable - offset
		if start < 0 {
			break
		}

		run := 0
		for row := 0; row < currentRows && start+row < usable; row++ {
			if !rowsEqual(result, start+row, current, row, from, count) {
				break
			}
			run++
		}

		if run > best.Run {
			best = Overlap{Offset: offset, Run: run}
		}
	}

	if best.Run < MinOverlapRows {
		return best, false
	}
	return best, true
}

// NewContentHeight is the number of bottom rows of current that extend the
// result once an overlap of run rows has been found.
func NewContentHeight(currentHeight, bottomOffset, run int) int {
	return max(1, currentHeight-bottomOffset-run)
}
