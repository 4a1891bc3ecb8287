package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/spotter/internal/geom"
)

func det(id, label string, conf float64, box geom.Rect) Detection {
	return Detection{ID: id, Label: label, Confidence: conf, Box: box}
}

func TestFilterPartitionsIntoBuckets(t *testing.T) {
	dets := []Detection{
		det("a", "cup", 0.92, geom.Rect{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}),
		det("b", "dog", 0.55, geom.Rect{X: 0.4, Y: 0.1, W: 0.1, H: 0.1}),
		det("c", "cat", 0.15, geom.Rect{X: 0.7, Y: 0.1, W: 0.1, H: 0.1}),
		det("d", "bird", 0.05, geom.Rect{X: 0.1, Y: 0.5, W: 0.1, H: 0.1}),
	}

	out := Filter(dets, DefaultFilterConfig())

	require.Len(t, out.AutoAccept, 1)
	require.Len(t, out.NeedsVerification, 1)
	require.Len(t, out.StrictGate, 1)
	assert.Equal(t, "cup", out.AutoAccept[0].Label)
	assert.Equal(t, "dog", out.NeedsVerification[0].Label)
	assert.Equal(t, "cat", out.StrictGate[0].Label)

	// Below the noise floor nothing survives, and the buckets partition the
	// surviving set exactly.
	assert.Equal(t, 3, out.Count())
	assert.Len(t, out.All(), 3)
}

func TestFilterDropsDegenerateBoxes(t *testing.T) {
	dets := []Detection{
		det("tiny", "cup", 0.9, geom.Rect{X: 0.1, Y: 0.1, W: 0.01, H: 0.01}),
		det("huge", "cup", 0.9, geom.Rect{X: 0, Y: 0, W: 1.0, H: 0.95}),
		det("ok", "cup", 0.9, geom.Rect{X: 0.3, Y: 0.3, W: 0.2, H: 0.2}),
	}

	out := Filter(dets, DefaultFilterConfig())

	require.Equal(t, 1, out.Count())
	assert.Equal(t, "ok", out.All()[0].ID)
}

func TestFilterAllowedLabels(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.AllowedLabels = map[string]float64{"cup": 0.30}

	dets := []Detection{
		det("a", "Cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}),
		det("b", "cup", 0.25, geom.Rect{X: 0.4, Y: 0.1, W: 0.1, H: 0.1}),
		det("c", "dog", 0.90, geom.Rect{X: 0.7, Y: 0.1, W: 0.1, H: 0.1}),
	}

	out := Filter(dets, cfg)

	require.Equal(t, 1, out.Count())
	assert.Equal(t, "a", out.All()[0].ID)
}

func TestFilterCapsInstancesPerClass(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.MaxInstancesPerClass = 1

	dets := []Detection{
		det("weak", "cup", 0.40, geom.Rect{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}),
		det("strong", "cup", 0.60, geom.Rect{X: 0.6, Y: 0.6, W: 0.1, H: 0.1}),
	}

	out := Filter(dets, cfg)

	require.Equal(t, 1, out.Count())
	assert.Equal(t, "strong", out.All()[0].ID)
}

func TestNMSSuppressesOverlap(t *testing.T) {
	a := det("a", "cup", 0.60, geom.Rect{X: 0.10, Y: 0.10, W: 0.20, H: 0.20})
	b := det("b", "cup", 0.50, geom.Rect{X: 0.12, Y: 0.10, W: 0.20, H: 0.20})
	c := det("c", "cup", 0.40, geom.Rect{X: 0.70, Y: 0.70, W: 0.10, H: 0.10})

	out := NMS([]Detection{b, a, c}, 0.45)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestNMSIdempotent(t *testing.T) {
	dets := []Detection{
		det("a", "cup", 0.60, geom.Rect{X: 0.10, Y: 0.10, W: 0.20, H: 0.20}),
		det("b", "dog", 0.50, geom.Rect{X: 0.50, Y: 0.50, W: 0.20, H: 0.20}),
	}

	once := NMS(dets, 0.45)
	twice := NMS(once, 0.45)

	assert.Equal(t, once, twice)
}

func TestNMSIdenticalBoxesKeepOne(t *testing.T) {
	box := geom.Rect{X: 0.2, Y: 0.2, W: 0.3, H: 0.3}
	out := NMS([]Detection{
		det("a", "cup", 0.7, box),
		det("b", "cup", 0.6, box),
		det("c", "cup", 0.5, box),
	}, 0.45)

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestDedupeByLabelCaseInsensitive(t *testing.T) {
	out := dedupeByLabel([]Detection{
		det("a", "Cup", 0.9, geom.Rect{}),
		det("b", "cup", 0.8, geom.Rect{}),
		det("c", "dog", 0.7, geom.Rect{}),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}
