package vision

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/your-org/spotter/internal/geom"
)

// RequiredHitsPolicy decides how many matched frames a track needs before
// it is emitted, as a function of its smoothed confidence. Pluggable on
// purpose: aggressive setups emit on the first hit, stricter ones demand
// confirmation for low-confidence tracks.
type RequiredHitsPolicy func(confidence float64) int

// ConstantHits emits every track after n hits regardless of confidence.
func ConstantHits(n int) RequiredHitsPolicy {
	return func(float64) int { return n }
}

// TieredHits demands more confirmation from low-confidence tracks:
// tracks at or above the confidence threshold need confidentHits, the
// rest need marginalHits.
func TieredHits(threshold float64, confidentHits, marginalHits int) RequiredHitsPolicy {
	return func(confidence float64) int {
		if confidence >= threshold {
			return confidentHits
		}
		return marginalHits
	}
}

// TrackerConfig tunes cross-frame association and smoothing.
type TrackerConfig struct {
	// IoUThreshold is the minimum overlap to match a detection to a track.
	// Loosen for crowded scenes.
	IoUThreshold float64
	// SmoothingAlpha is the EMA weight of the newest sample for box and
	// confidence. Small values favor responsiveness over stability.
	SmoothingAlpha float64
	// VotingWindow bounds the per-track label history.
	VotingWindow int
	// VotingDecay is the per-step recency falloff in label voting.
	VotingDecay float64
	// MaxTrackAge removes tracks unmatched for longer than this.
	MaxTrackAge time.Duration
	// MaxTracks is the hard capacity; lowest-confidence tracks are evicted
	// beyond it.
	MaxTracks int
	// GridSize is the association grid resolution per axis over the unit
	// square.
	GridSize int
	// RequiredHits is the emission policy.
	RequiredHits RequiredHitsPolicy
}

// DefaultTrackerConfig returns the production stabilizer tuning.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		IoUThreshold:   0.30,
		SmoothingAlpha: 0.10,
		VotingWindow:   5,
		VotingDecay:    0.80,
		MaxTrackAge:    2 * time.Second,
		MaxTracks:      64,
		GridSize:       10,
		RequiredHits:   ConstantHits(3),
	}
}

type labelVote struct {
	Label      string
	Confidence float64
}

// Track is the mutable cross-frame state for one physical object. Owned
// exclusively by its Tracker; nothing else writes to it.
type Track struct {
	ID         string
	Label      string
	Box        geom.Rect
	Confidence float64
	Hits       int
	LastSeen   time.Time

	history []labelVote
}

// Tracker converts fused per-frame detections into temporally coherent
// tracks. Single writer per stream; the mutex guards cross-goroutine reads
// of the emitted snapshot.
type Tracker struct {
	mu       sync.Mutex
	cfg      TrackerConfig
	tracks   map[string]*Track
	nextID   int
	streamID string

	// latest is the newest frame timestamp seen; stale out-of-order
	// completions never move it (or any track's LastSeen) backward.
	latest time.Time

	frameTimes []time.Time
}

// NewTracker creates a stabilizer for one stream.
func NewTracker(streamID string, cfg TrackerConfig) *Tracker {
	if cfg.RequiredHits == nil {
		cfg.RequiredHits = ConstantHits(3)
	}
	return &Tracker{
		cfg:      cfg,
		tracks:   make(map[string]*Track),
		streamID: streamID,
	}
}

// Update associates one frame's fused detections with existing tracks,
// smooths matches, creates tracks for the unmatched, and prunes the stale.
// ts is the frame's capture timestamp; completions may arrive out of order.
func (t *Tracker) Update(dets []Detection, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ts.After(t.latest) {
		t.latest = ts
	}
	t.observeFrame()

	idx := newGridIndex(t.cfg.GridSize)
	for id, tr := range t.tracks {
		idx.insert(id, tr.Box)
	}

	claimed := make(map[string]bool, len(dets))
	for _, det := range dets {
		bestID := ""
		bestIoU := -1.0
		for _, id := range idx.query(det.Box) {
			if claimed[id] {
				continue
			}
			v := geom.IoU(det.Box, t.tracks[id].Box)
			if v > bestIoU {
				bestIoU = v
				bestID = id
			}
		}

		if bestID != "" && bestIoU >= t.cfg.IoUThreshold {
			claimed[bestID] = true
			t.updateTrack(t.tracks[bestID], det, ts)
		} else {
			t.createTrack(det, ts)
		}
	}

	t.prune()
}

func (t *Tracker) updateTrack(tr *Track, det Detection, ts time.Time) {
	alpha := t.cfg.SmoothingAlpha
	tr.Box = geom.LerpRect(tr.Box, det.Box, alpha)
	tr.Confidence = geom.Lerp(tr.Confidence, det.Confidence, alpha)

	tr.history = append(tr.history, labelVote{Label: det.Label, Confidence: det.Confidence})
	if len(tr.history) > t.cfg.VotingWindow {
		tr.history = tr.history[len(tr.history)-t.cfg.VotingWindow:]
	}
	tr.Label = voteLabel(tr.history, t.cfg.VotingDecay)

	tr.Hits++
	if ts.After(tr.LastSeen) {
		tr.LastSeen = ts
	}
}

func (t *Tracker) createTrack(det Detection, ts time.Time) {
	t.nextID++
	id := fmt.Sprintf("%s_%d", t.streamID, t.nextID)
	t.tracks[id] = &Track{
		ID:         id,
		Label:      det.Label,
		Box:        det.Box,
		Confidence: det.Confidence,
		Hits:       1,
		LastSeen:   ts,
		history:    []labelVote{{Label: det.Label, Confidence: det.Confidence}},
	}
}

// prune drops tracks unmatched beyond MaxTrackAge, then evicts the
// lowest-confidence tracks while over capacity.
func (t *Tracker) prune() {
	for id, tr := range t.tracks {
		if t.latest.Sub(tr.LastSeen) > t.cfg.MaxTrackAge {
			delete(t.tracks, id)
		}
	}

	if t.cfg.MaxTracks <= 0 || len(t.tracks) <= t.cfg.MaxTracks {
		return
	}
	byConf := make([]*Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		byConf = append(byConf, tr)
	}
	sort.Slice(byConf, func(i, j int) bool {
		return byConf[i].Confidence < byConf[j].Confidence
	})
	for _, tr := range byConf {
		if len(t.tracks) <= t.cfg.MaxTracks {
			break
		}
		delete(t.tracks, tr.ID)
	}
}

// Emitted returns the stabilized detections for tracks that satisfy the
// hit and age requirements, sorted by confidence descending. Read-only
// snapshot for the rendering/game layer.
func (t *Tracker) Emitted() []Detection {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Detection, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if tr.Hits < t.cfg.RequiredHits(tr.Confidence) {
			continue
		}
		if t.latest.Sub(tr.LastSeen) > t.cfg.MaxTrackAge {
			continue
		}
		out = append(out, Detection{
			ID:         tr.ID,
			Label:      tr.Label,
			Confidence: tr.Confidence,
			Box:        tr.Box,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// TrackCount returns the number of live tracks.
func (t *Tracker) TrackCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// FPS reports the recent frame-processing rate over a sliding window of
// wall-clock update times.
func (t *Tracker) FPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frameTimes) < 2 {
		return 0
	}
	elapsed := t.frameTimes[len(t.frameTimes)-1].Sub(t.frameTimes[0]).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(t.frameTimes)-1) / elapsed
}

const fpsWindow = 30

func (t *Tracker) observeFrame() {
	t.frameTimes = append(t.frameTimes, time.Now())
	if len(t.frameTimes) > fpsWindow {
		t.frameTimes = t.frameTimes[len(t.frameTimes)-fpsWindow:]
	}
}

// voteLabel computes the recency-and-confidence-weighted label vote over a
// bounded history, most-recent-last. Ties go to the most recent entry's
// label.
func voteLabel(history []labelVote, decay float64) string {
	n := len(history)
	if n == 0 {
		return ""
	}

	weights := make(map[string]float64, n)
	for i, v := range history {
		w := math.Pow(decay, float64(n-1-i)) * v.Confidence
		weights[v.Label] += w
	}

	best := history[n-1].Label
	bestWeight := weights[best]
	for label, w := range weights {
		if w > bestWeight {
			best = label
			bestWeight = w
		}
	}
	return best
}

// gridIndex is an ephemeral uniform grid over the unit square, rebuilt
// every frame from current tracks. Pure acceleration structure — never a
// source of truth. A box spanning multiple cells is inserted into all of
// them.
type gridIndex struct {
	size  int
	cells map[int][]string
}

func newGridIndex(size int) *gridIndex {
	if size <= 0 {
		size = 10
	}
	return &gridIndex{size: size, cells: make(map[int][]string)}
}

func (g *gridIndex) insert(id string, box geom.Rect) {
	c0, r0, c1, r1 := g.cellRange(box)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			key := r*g.size + c
			g.cells[key] = append(g.cells[key], id)
		}
	}
}

// query returns the deduplicated track ids from every cell the box overlaps.
func (g *gridIndex) query(box geom.Rect) []string {
	c0, r0, c1, r1 := g.cellRange(box)
	seen := make(map[string]bool)
	var out []string
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			for _, id := range g.cells[r*g.size+c] {
				if seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (g *gridIndex) cellRange(box geom.Rect) (c0, r0, c1, r1 int) {
	c0 = g.clampCell(box.X)
	r0 = g.clampCell(box.Y)
	c1 = g.clampCell(box.MaxX())
	r1 = g.clampCell(box.MaxY())
	return
}

func (g *gridIndex) clampCell(v float64) int {
	cell := int(v * float64(g.size))
	if cell < 0 {
		return 0
	}
	if cell >= g.size {
		return g.size - 1
	}
	return cell
}
