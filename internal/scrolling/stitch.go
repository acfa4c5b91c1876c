package scrolling

import (
	"image"

	"golang.org/x/image/draw"

	"jordanella.com/regioncap/internal/pixels"
)

// MaxResultHeight caps the composite image height
const MaxResultHeight = 32768

// stitchState is the accumulator carried across frames of one session
type stitchState struct {
	matches        int
	lastNewContent int
}

// stitchOutcome describes one stitch step
type stitchOutcome struct {
	image        *image.RGBA
	status       Status
	bottomOffset int
	newContent   int
	run          int
}

// stitch joins current below result. When no overlap is found the last
// good new-content height is reused (PartiallySuccessful); without one,
// half of the current frame is appended (Failed).
func (s *stitchState) stitch(result, current *image.RGBA, ignoreBottomEdge bool) stitchOutcome {
	res := pixels.FromRGBA(result)
	cur := pixels.FromRGBA(current)
	margin := pixels.SideMargin(res.Width)

	bottom := 0
	if ignoreBottomEdge {
		bottom = pixels.BottomEdgeOffset(res, cur, margin)
	}

	overlap, ok := pixels.FindOverlap(res, cur, margin, bottom)
	if ok {
		newContent := pixels.NewContentHeight(cur.Height, bottom, overlap.Run)
		s.matches++
		s.lastNewContent = newContent
		return stitchOutcome{
			image:        compose(result, current, newContent, bottom),
			status:       StatusSuccessful,
			bottomOffset: bottom,
			newContent:   newContent,
			run:          overlap.Run,
		}
	}

	if s.matches > 0 && s.lastNewContent > 0 {
		return stitchOutcome{
			image:        compose(result, current, s.lastNewContent, bottom),
			status:       StatusPartiallySuccessful,
			bottomOffset: bottom,
			newContent:   s.lastNewContent,
		}
	}

	half := cur.Height / 2
	return stitchOutcome{
		image:      compose(result, current, half, 0),
		status:     StatusFailed,
		newContent: half,
	}
}

// compose builds a new image: result without its bottom edge on top, then
// the newContent rows of current directly above current's bottom edge.
func compose(result, current *image.RGBA, newContent, bottom int) *image.RGBA {
	rb := result.Bounds()
	cb := current.Bounds()
	width := rb.Dx()
	usable := rb.Dy() - bottom

	newContent = min(newContent, cb.Dy()-bottom, MaxResultHeight-usable)
	if newContent <= 0 {
		return cloneRGBA(result)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, usable+newContent))
	draw.Draw(out, image.Rect(0, 0, width, usable), result, rb.Min, draw.Src)

	srcY := cb.Dy() - bottom - newContent
	draw.Draw(out, image.Rect(0, usable, width, usable+newContent), current, cb.Min.Add(image.Pt(0, srcY)), draw.Src)

	return out
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}
