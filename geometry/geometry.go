// Package geometry contains the integer axis-aligned primitives consumed by
// the grid index.
package geometry

import "math"

// Size is a width and a height.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func NewSize(width, height int) Size {
	return Size{Width: width, Height: height}
}

// IsPositive reports whether both dimensions are strictly positive.
func (s Size) IsPositive() bool {
	return s.Width > 0 && s.Height > 0
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rectangle is an axis-aligned rectangle defined by its origin and its size.
// The right and bottom edges are exclusive.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func NewRectangle(x, y, width, height int) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// Right returns x+width, saturated to the int range.
func (r Rectangle) Right() int {
	return addSaturated(r.X, r.Width)
}

// Bottom returns y+height, saturated to the int range.
func (r Rectangle) Bottom() int {
	return addSaturated(r.Y, r.Height)
}

func addSaturated(a, b int) int {
	s := a + b
	switch {
	case b > 0 && s < a:
		return math.MaxInt
	case b < 0 && s > a:
		return math.MinInt
	}
	return s
}

func (r Rectangle) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// IsEmpty reports whether the rectangle covers no area.
func (r Rectangle) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() &&
		p.Y >= r.Y && p.Y < r.Bottom()
}

// Intersects reports whether both rectangles share a non-empty area.
func (r Rectangle) Intersects(o Rectangle) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	if r.X >= o.Right() || r.Right() <= o.X {
		return false
	}
	if r.Y >= o.Bottom() || r.Bottom() <= o.Y {
		return false
	}
	return true
}

// Union returns the smallest rectangle containing both rectangles. Empty
// rectangles are ignored.
func (r Rectangle) Union(o Rectangle) Rectangle {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}

	x := min(r.X, o.X)
	y := min(r.Y, o.Y)
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  max(r.Right(), o.Right()) - x,
		Height: max(r.Bottom(), o.Bottom()) - y,
	}
}

func (r Rectangle) Offset(dx, dy int) Rectangle {
	r.X += dx
	r.Y += dy
	return r
}

// FloorDiv divides a by b rounding toward negative infinity. b must be
// positive.
func FloorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// CeilDiv divides a by b rounding toward positive infinity. b must be
// positive.
func CeilDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}
