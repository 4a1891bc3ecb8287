package vision

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/spotter/internal/geom"
)

var trackerEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func frameAt(ms int) time.Time {
	return trackerEpoch.Add(time.Duration(ms) * time.Millisecond)
}

func TestTrackerEmitsAfterRequiredHits(t *testing.T) {
	tr := NewTracker("s1", DefaultTrackerConfig())
	d := det("", "cup", 0.9, geom.Rect{X: 0.4, Y: 0.4, W: 0.2, H: 0.2})

	tr.Update([]Detection{d}, frameAt(0))
	tr.Update([]Detection{d}, frameAt(100))
	assert.Empty(t, tr.Emitted())

	tr.Update([]Detection{d}, frameAt(200))
	emitted := tr.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, "cup", emitted[0].Label)
	assert.Equal(t, 1, tr.TrackCount())
}

func TestTrackerTieredHitsPolicy(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = TieredHits(0.50, 1, 3)
	tr := NewTracker("s1", cfg)

	confident := det("", "cup", 0.90, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})
	marginal := det("", "dog", 0.30, geom.Rect{X: 0.6, Y: 0.6, W: 0.2, H: 0.2})

	tr.Update([]Detection{confident, marginal}, frameAt(0))

	emitted := tr.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, "cup", emitted[0].Label)
}

func TestTrackerSmoothsBoxAndConfidence(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)

	tr.Update([]Detection{det("", "cup", 1.0, geom.Rect{X: 0.40, Y: 0.40, W: 0.20, H: 0.20})}, frameAt(0))
	tr.Update([]Detection{det("", "cup", 0.0, geom.Rect{X: 0.50, Y: 0.40, W: 0.20, H: 0.20})}, frameAt(100))

	emitted := tr.Emitted()
	require.Len(t, emitted, 1)
	// alpha 0.1: the new sample nudges, it does not jump.
	assert.InDelta(t, 0.41, emitted[0].Box.X, 1e-9)
	assert.InDelta(t, 0.90, emitted[0].Confidence, 1e-9)
}

func TestTrackerLabelVotingResistsFlicker(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)

	box := geom.Rect{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}
	tr.Update([]Detection{det("", "cup", 0.9, box)}, frameAt(0))
	tr.Update([]Detection{det("", "cup", 0.9, box)}, frameAt(100))
	tr.Update([]Detection{det("", "vase", 0.3, box)}, frameAt(200))

	emitted := tr.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, "cup", emitted[0].Label)
}

func TestTrackerPrunesStaleTracks(t *testing.T) {
	tr := NewTracker("s1", DefaultTrackerConfig())
	d := det("", "cup", 0.9, geom.Rect{X: 0.4, Y: 0.4, W: 0.2, H: 0.2})

	tr.Update([]Detection{d}, frameAt(0))
	require.Equal(t, 1, tr.TrackCount())

	// Advance well past the max track age with no further matches.
	tr.Update(nil, frameAt(3000))
	assert.Zero(t, tr.TrackCount())
	assert.Empty(t, tr.Emitted())
}

func TestTrackerCapacityEvictsLowestConfidence(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MaxTracks = 2
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)

	tr.Update([]Detection{
		det("", "cup", 0.9, geom.Rect{X: 0.10, Y: 0.10, W: 0.10, H: 0.10}),
		det("", "dog", 0.5, geom.Rect{X: 0.40, Y: 0.40, W: 0.10, H: 0.10}),
		det("", "cat", 0.2, geom.Rect{X: 0.70, Y: 0.70, W: 0.10, H: 0.10}),
	}, frameAt(0))

	require.Equal(t, 2, tr.TrackCount())
	labels := make([]string, 0, 2)
	for _, d := range tr.Emitted() {
		labels = append(labels, d.Label)
	}
	assert.ElementsMatch(t, []string{"cup", "dog"}, labels)
}

func TestTrackerStaleFrameNeverRegresses(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)
	d := det("", "cup", 0.9, geom.Rect{X: 0.4, Y: 0.4, W: 0.2, H: 0.2})

	tr.Update([]Detection{d}, frameAt(500))
	// A late completion from an earlier frame arrives out of order.
	tr.Update([]Detection{d}, frameAt(100))

	emitted := tr.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, 1, tr.TrackCount())
}

func TestTrackerSeparateObjectsGetSeparateTracks(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)

	tr.Update([]Detection{
		det("", "cup", 0.9, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("", "cup", 0.8, geom.Rect{X: 0.70, Y: 0.70, W: 0.15, H: 0.15}),
	}, frameAt(0))

	assert.Equal(t, 2, tr.TrackCount())
	assert.Len(t, tr.Emitted(), 2)
}

func TestTrackerEmittedSortedByConfidence(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)

	tr.Update([]Detection{
		det("", "dog", 0.5, geom.Rect{X: 0.10, Y: 0.10, W: 0.15, H: 0.15}),
		det("", "cup", 0.9, geom.Rect{X: 0.60, Y: 0.60, W: 0.15, H: 0.15}),
	}, frameAt(0))

	emitted := tr.Emitted()
	require.Len(t, emitted, 2)
	assert.Equal(t, "cup", emitted[0].Label)
	assert.Equal(t, "dog", emitted[1].Label)
}

func TestVoteLabelTiesGoToMostRecent(t *testing.T) {
	history := []labelVote{
		{Label: "cup", Confidence: 0.5},
		{Label: "mug", Confidence: 0.5},
	}
	// decay 1.0 gives both labels identical weight.
	assert.Equal(t, "mug", voteLabel(history, 1.0))
}

func TestGridIndexFindsSpanningBoxes(t *testing.T) {
	g := newGridIndex(10)
	g.insert("wide", geom.Rect{X: 0.05, Y: 0.05, W: 0.60, H: 0.10})

	hits := g.query(geom.Rect{X: 0.55, Y: 0.05, W: 0.10, H: 0.10})
	require.Len(t, hits, 1)
	assert.Equal(t, "wide", hits[0])

	assert.Empty(t, g.query(geom.Rect{X: 0.05, Y: 0.80, W: 0.10, H: 0.10}))
}

func TestGridIndexQueryDeduplicates(t *testing.T) {
	g := newGridIndex(10)
	g.insert("a", geom.Rect{X: 0.0, Y: 0.0, W: 0.35, H: 0.35})

	hits := g.query(geom.Rect{X: 0.0, Y: 0.0, W: 0.30, H: 0.30})
	assert.Equal(t, []string{"a"}, hits)
}

func TestTrackerIDsAreUniquePerStream(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.RequiredHits = ConstantHits(1)
	tr := NewTracker("s1", cfg)

	for i := 0; i < 3; i++ {
		x := 0.1 + float64(i)*0.3
		tr.Update([]Detection{det("", fmt.Sprintf("obj%d", i), 0.9, geom.Rect{X: x, Y: 0.1, W: 0.1, H: 0.1})}, frameAt(i*100))
	}

	seen := make(map[string]bool)
	for _, d := range tr.Emitted() {
		assert.False(t, seen[d.ID])
		seen[d.ID] = true
	}
	assert.Len(t, seen, 3)
}
