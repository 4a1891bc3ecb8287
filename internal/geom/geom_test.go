package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoUIdentical(t *testing.T) {
	r := Rect{X: 0.1, Y: 0.2, W: 0.3, H: 0.4}
	assert.InDelta(t, 1.0, IoU(r, r), 1e-9)
}

func TestIoUSymmetric(t *testing.T) {
	a := Rect{X: 0.1, Y: 0.1, W: 0.4, H: 0.4}
	b := Rect{X: 0.3, Y: 0.3, W: 0.4, H: 0.4}
	assert.InDelta(t, IoU(a, b), IoU(b, a), 1e-12)
	assert.Greater(t, IoU(a, b), 0.0)
}

func TestIoUDisjoint(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 0.2, H: 0.2}
	b := Rect{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}
	assert.Equal(t, 0.0, IoU(a, b))
}

func TestIoUTouchingEdges(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 0.5, H: 0.5}
	b := Rect{X: 0.5, Y: 0, W: 0.5, H: 0.5}
	assert.Equal(t, 0.0, IoU(a, b))
}

func TestIoUDegenerate(t *testing.T) {
	a := Rect{X: 0.5, Y: 0.5, W: 0, H: 0}
	// Zero union must not divide by zero.
	assert.Equal(t, 0.0, IoU(a, a))
}

func TestIoUKnownOverlap(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 0.2, H: 0.2}
	b := Rect{X: 0.1, Y: 0, W: 0.2, H: 0.2}
	// intersection 0.1*0.2 = 0.02, union 0.04+0.04-0.02 = 0.06
	assert.InDelta(t, 1.0/3.0, IoU(a, b), 1e-9)
}

func TestArea(t *testing.T) {
	assert.InDelta(t, 0.12, Rect{W: 0.3, H: 0.4}.Area(), 1e-12)
	assert.Equal(t, 0.0, Rect{}.Area())
}

func TestMinSide(t *testing.T) {
	assert.Equal(t, 0.3, Rect{W: 0.3, H: 0.4}.MinSide())
	assert.Equal(t, 0.2, Rect{W: 0.3, H: 0.2}.MinSide())
}

func TestLerp(t *testing.T) {
	assert.InDelta(t, 0.1, Lerp(0, 1, 0.1), 1e-12)
	assert.InDelta(t, 5.0, Lerp(5, 9, 0), 1e-12)
	assert.InDelta(t, 9.0, Lerp(5, 9, 1), 1e-12)
}

func TestLerpRect(t *testing.T) {
	old := Rect{X: 0, Y: 0, W: 0.2, H: 0.2}
	sample := Rect{X: 1, Y: 1, W: 0.4, H: 0.4}
	got := LerpRect(old, sample, 0.5)
	assert.InDelta(t, 0.5, got.X, 1e-12)
	assert.InDelta(t, 0.5, got.Y, 1e-12)
	assert.InDelta(t, 0.3, got.W, 1e-12)
	assert.InDelta(t, 0.3, got.H, 1e-12)
}
