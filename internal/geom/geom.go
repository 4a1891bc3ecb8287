// Package geom holds normalized-rectangle arithmetic shared by the
// detection pipeline. All rectangles live in the unit square: origin and
// size are fractions of the frame dimensions.
package geom

import "math"

// unionEpsilon floors the union area in IoU so degenerate rects cannot
// divide by zero.
const unionEpsilon = 1e-9

// Rect is an axis-aligned rectangle normalized to [0,1] frame coordinates.
// Width and height may be zero but never negative. Helpers do not clamp;
// callers clamp before use.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns width * height.
func (r Rect) Area() float64 { return r.W * r.H }

// MinSide returns the smaller of width and height.
func (r Rect) MinSide() float64 { return math.Min(r.W, r.H) }

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.W }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.H }

// IoU returns the intersection-over-union of two rects.
// Disjoint rects yield 0.
func IoU(a, b Rect) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.MaxX(), b.MaxX())
	y2 := math.Min(a.MaxY(), b.MaxY())

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union < unionEpsilon {
		union = unionEpsilon
	}
	return inter / union
}

// Lerp blends old toward sample: old*(1-alpha) + sample*alpha.
func Lerp(old, sample, alpha float64) float64 {
	return old*(1-alpha) + sample*alpha
}

// LerpRect applies Lerp to each component independently.
func LerpRect(old, sample Rect, alpha float64) Rect {
	return Rect{
		X: Lerp(old.X, sample.X, alpha),
		Y: Lerp(old.Y, sample.Y, alpha),
		W: Lerp(old.W, sample.W, alpha),
		H: Lerp(old.H, sample.H, alpha),
	}
}
