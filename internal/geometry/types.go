package geometry

import (
	"fmt"
	"image"
	"math"
)

// PhysicalPoint is a device pixel position in the virtual desktop.
// Coordinates can be negative (e.g. a monitor left of the primary).
type PhysicalPoint struct {
	X, Y int
}

// PhysicalRect is a device pixel rectangle. Right and Bottom are exclusive.
type PhysicalRect struct {
	X, Y, Width, Height int
}

// LogicalPoint is a DPI-independent position used by the UI layer
type LogicalPoint struct {
	X, Y float64
}

// LogicalRect is a DPI-independent rectangle
type LogicalRect struct {
	X, Y, Width, Height float64
}

// NewPhysicalRect creates a new physical rectangle
func NewPhysicalRect(x, y, width, height int) PhysicalRect {
	return PhysicalRect{X: x, Y: y, Width: width, Height: height}
}

// PhysicalRectFromCorners builds a rectangle from two opposite corners
func PhysicalRectFromCorners(a, b PhysicalPoint) PhysicalRect {
	minX, maxX := a.X, b.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := a.Y, b.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return PhysicalRect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// PhysicalRectFromImage converts an image.Rectangle
func PhysicalRectFromImage(r image.Rectangle) PhysicalRect {
	return PhysicalRect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Right returns the exclusive right edge
func (r PhysicalRect) Right() int {
	return r.X + r.Width
}

// Bottom returns the exclusive bottom edge
func (r PhysicalRect) Bottom() int {
	return r.Y + r.Height
}

// TopLeft returns the top-left corner
func (r PhysicalRect) TopLeft() PhysicalPoint {
	return PhysicalPoint{X: r.X, Y: r.Y}
}

// BottomRight returns the (exclusive) bottom-right corner
func (r PhysicalRect) BottomRight() PhysicalPoint {
	return PhysicalPoint{X: r.Right(), Y: r.Bottom()}
}

// IsEmpty reports whether the rectangle has no area
func (r PhysicalRect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns width*height, or 0 for empty rectangles
func (r PhysicalRect) Area() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Width * r.Height
}

// Contains checks if a point is within the rectangle
func (r PhysicalRect) Contains(p PhysicalPoint) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Intersect returns the overlap of r and other. ok is false unless the
// overlap has positive area.
func (r PhysicalRect) Intersect(other PhysicalRect) (PhysicalRect, bool) {
	x1 := max(r.X, other.X)
	y1 := max(r.Y, other.Y)
	x2 := min(r.Right(), other.Right())
	y2 := min(r.Bottom(), other.Bottom())

	if x2 <= x1 || y2 <= y1 {
		return PhysicalRect{}, false
	}
	return PhysicalRect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

// Union returns the smallest rectangle containing both rectangles
func (r PhysicalRect) Union(other PhysicalRect) PhysicalRect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	x1 := min(r.X, other.X)
	y1 := min(r.Y, other.Y)
	x2 := max(r.Right(), other.Right())
	y2 := max(r.Bottom(), other.Bottom())
	return PhysicalRect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// ToImage converts the rectangle to an image.Rectangle
func (r PhysicalRect) ToImage() image.Rectangle {
	return image.Rect(r.X, r.Y, r.Right(), r.Bottom())
}

func (r PhysicalRect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// LogicalRectFromCorners builds a rectangle from two opposite corners
func LogicalRectFromCorners(a, b LogicalPoint) LogicalRect {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return LogicalRect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Right returns the exclusive right edge
func (r LogicalRect) Right() float64 {
	return r.X + r.Width
}

// Bottom returns the exclusive bottom edge
func (r LogicalRect) Bottom() float64 {
	return r.Y + r.Height
}

// TopLeft returns the top-left corner
func (r LogicalRect) TopLeft() LogicalPoint {
	return LogicalPoint{X: r.X, Y: r.Y}
}

// BottomRight returns the (exclusive) bottom-right corner
func (r LogicalRect) BottomRight() LogicalPoint {
	return LogicalPoint{X: r.Right(), Y: r.Bottom()}
}

// Contains checks if a point is within the rectangle
func (r LogicalRect) Contains(p LogicalPoint) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

func (r LogicalRect) String() string {
	return fmt.Sprintf("(%.2f,%.2f %.2fx%.2f)", r.X, r.Y, r.Width, r.Height)
}
