package vision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/spotter/internal/geom"
)

func TestParseOutputDecodesAnchors(t *testing.T) {
	d := &Detector{
		vocab:     []string{"cup", "dog"},
		threshold: 0.20,
		inputW:    640,
		inputH:    640,
		anchors:   2,
	}

	// Layout [4+C, N], N=2: rows cx, cy, w, h, score(cup), score(dog).
	data := []float32{
		320, 100, // cx
		320, 100, // cy
		64, 20, // w
		64, 20, // h
		0.90, 0.05, // cup
		0.10, 0.15, // dog
	}

	dets := d.parseOutput(data)

	// Anchor 1's best score (0.15) is below threshold.
	require.Len(t, dets, 1)
	assert.Equal(t, "cup", dets[0].Label)
	assert.InDelta(t, 0.90, dets[0].Confidence, 1e-6)
	assert.InDelta(t, 0.45, dets[0].Box.X, 1e-6)
	assert.InDelta(t, 0.45, dets[0].Box.Y, 1e-6)
	assert.InDelta(t, 0.10, dets[0].Box.W, 1e-6)
	assert.NotEmpty(t, dets[0].ID)
}

func TestParseOutputClampsToFrame(t *testing.T) {
	d := &Detector{
		vocab:     []string{"cup"},
		threshold: 0.20,
		inputW:    640,
		inputH:    640,
		anchors:   1,
	}

	// Box centered near the left edge spills outside the frame.
	data := []float32{10, 320, 100, 100, 0.9}

	dets := d.parseOutput(data)

	require.Len(t, dets, 1)
	box := dets[0].Box
	assert.GreaterOrEqual(t, box.X, 0.0)
	assert.LessOrEqual(t, box.MaxX(), 1.0)
	assert.GreaterOrEqual(t, box.W, 0.0)
}

func TestDetectWithoutPrepare(t *testing.T) {
	d := NewDetector("nope.onnx", []string{"cup"}, 0.1, nil)

	_, err := d.Detect(context.Background(), testFrame())
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestPrepareMissingModel(t *testing.T) {
	d := NewDetector(filepath.Join(t.TempDir(), "missing.onnx"), []string{"cup"}, 0.1, nil)

	err := d.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	content := "cup\n\n# household\ndog\n  cat  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	vocab, err := LoadVocabulary(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"cup", "dog", "cat"}, vocab)
}

func TestLoadVocabularyEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("# only comments\n"), 0o644))

	_, err := LoadVocabulary(path)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClampToUnit(t *testing.T) {
	r := clampToUnit(geom.Rect{X: -0.1, Y: 0.5, W: 0.3, H: 0.8})
	assert.Zero(t, r.X)
	assert.InDelta(t, 0.2, r.W, 1e-9)
	assert.InDelta(t, 0.5, r.H, 1e-9)

	r = clampToUnit(geom.Rect{X: 2, Y: 2, W: 0.5, H: 0.5})
	assert.Zero(t, r.W)
	assert.Zero(t, r.H)
}
