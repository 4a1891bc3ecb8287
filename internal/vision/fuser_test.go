package vision

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/spotter/internal/geom"
)

type fakeSource struct {
	dets     []Detection
	prepares int
}

func (s *fakeSource) Prepare(context.Context) error { s.prepares++; return nil }

func (s *fakeSource) Detect(context.Context, image.Image) ([]Detection, error) {
	out := make([]Detection, len(s.dets))
	copy(out, s.dets)
	return out, nil
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func fuserCfg() FuserConfig {
	cfg := DefaultFuserConfig()
	cfg.MinResults = 0
	return cfg
}

func TestFuseAutoAcceptSkipsOracle(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("a", "cup", 0.92, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}),
	}}
	oracle := &fakeOracle{ready: true, best: "cup", score: 0.99}
	f := NewFuser(src, NewScorer(oracle, DefaultVerifyConfig()), fuserCfg())

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.Zero(t, oracle.calls)
}

func TestFuseAllRejectedKeepsBatch(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("a", "cup", 0.50, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("b", "dog", 0.45, geom.Rect{X: 0.40, Y: 0.40, W: 0.15, H: 0.15}),
		det("c", "cat", 0.40, geom.Rect{X: 0.70, Y: 0.70, W: 0.15, H: 0.15}),
	}}
	oracle := &fakeOracle{ready: true, best: "cup", score: 0.10}
	f := NewFuser(src, NewScorer(oracle, DefaultVerifyConfig()), fuserCfg())

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	// A verifier that rejects everything is treated as degenerate; the
	// unverified batch survives rather than blanking the frame.
	assert.Len(t, out, 3)
}

func TestFusePartialRejectionDropsOnlyRejected(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("good", "cup", 0.50, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("bad", "dog", 0.50, geom.Rect{X: 0.50, Y: 0.50, W: 0.15, H: 0.15}),
	}}
	oracle := &fakeOracle{ready: true, scores: map[string]float64{"cup": 0.85, "dog": 0.10}}
	f := NewFuser(src, NewScorer(oracle, DefaultVerifyConfig()), fuserCfg())

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].ID)
	assert.InDelta(t, 0.85, out[0].Confidence, 1e-9)
}

func TestFuseNoVerifierFlatGate(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("a", "cup", 0.55, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("b", "dog", 0.30, geom.Rect{X: 0.50, Y: 0.50, W: 0.15, H: 0.15}),
	}}
	f := NewFuser(src, nil, fuserCfg())

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestFuseBackfillFloor(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("a", "cup", 0.55, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("b", "dog", 0.35, geom.Rect{X: 0.40, Y: 0.40, W: 0.15, H: 0.15}),
		det("c", "cat", 0.25, geom.Rect{X: 0.70, Y: 0.70, W: 0.15, H: 0.15}),
	}}
	cfg := fuserCfg()
	cfg.MinResults = 3
	cfg.NoVerifierGate = 0.90 // nothing passes the gate on its own
	f := NewFuser(src, nil, cfg)

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	// Candidates existed, so the floor guarantees the UI is not starved.
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
}

func TestFuseBackfillBoundedByCandidates(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("a", "cup", 0.55, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
	}}
	cfg := fuserCfg()
	cfg.MinResults = 3
	cfg.NoVerifierGate = 0.90
	f := NewFuser(src, nil, cfg)

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFuseDedupesFinalLabels(t *testing.T) {
	src := &fakeSource{dets: []Detection{
		det("a", "cup", 0.92, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("b", "Cup", 0.85, geom.Rect{X: 0.60, Y: 0.60, W: 0.15, H: 0.15}),
	}}
	f := NewFuser(src, nil, fuserCfg())

	out, err := f.Fuse(context.Background(), testFrame())

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestFuseEmptyStreakReprepares(t *testing.T) {
	src := &fakeSource{}
	cfg := fuserCfg()
	cfg.EmptyStreakLimit = 3
	f := NewFuser(src, nil, cfg)

	for i := 0; i < 3; i++ {
		out, err := f.Fuse(context.Background(), testFrame())
		require.NoError(t, err)
		assert.Empty(t, out)
	}
	assert.Equal(t, 1, src.prepares)

	// A successful re-preparation resets the streak.
	for i := 0; i < 3; i++ {
		_, err := f.Fuse(context.Background(), testFrame())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.prepares)
}
