package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/your-org/spotter/internal/observability"
)

// Source is the primary detector collaborator. Prepare must be safe to
// call more than once.
type Source interface {
	Prepare(ctx context.Context) error
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// FuserConfig tunes the per-frame fusion pass.
type FuserConfig struct {
	Filter FilterConfig
	// VerifyBudget caps the number of oracle calls per frame.
	VerifyBudget int
	// MinResults is the backfill floor: the UI must never be starved of
	// objects when candidates existed.
	MinResults int
	// NoVerifierGate is the flat acceptance confidence used when no
	// verification oracle is wired at all.
	NoVerifierGate float64
	// FinalNMSIoU is the looser second NMS pass over the merged set.
	FinalNMSIoU float64
	// EmptyStreakLimit is the number of consecutive empty frames that
	// triggers a detector re-preparation.
	EmptyStreakLimit int
}

// DefaultFuserConfig returns the production fusion tuning.
func DefaultFuserConfig() FuserConfig {
	return FuserConfig{
		Filter:           DefaultFilterConfig(),
		VerifyBudget:     16,
		MinResults:       3,
		NoVerifierGate:   0.40,
		FinalNMSIoU:      0.50,
		EmptyStreakLimit: 60,
	}
}

// Fuser sequences filter, selective verification, backfill, final NMS and
// label dedupe for one frame at a time. Stateless across frames apart from
// the empty-frame recovery counter; not safe for concurrent use — each
// stream pipeline owns its own Fuser.
type Fuser struct {
	detector    Source
	scorer      *Scorer
	cfg         FuserConfig
	emptyStreak int
}

func NewFuser(detector Source, scorer *Scorer, cfg FuserConfig) *Fuser {
	return &Fuser{detector: detector, scorer: scorer, cfg: cfg}
}

// Fuse runs the full fusion pass on one frame and returns the final,
// label-deduplicated detection set sorted by confidence descending.
// A detector error is surfaced to the caller; everything downstream
// degrades gracefully.
func (f *Fuser) Fuse(ctx context.Context, frame image.Image) ([]Detection, error) {
	raw, err := f.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	if len(raw) == 0 {
		f.emptyStreak++
		if f.emptyStreak >= f.cfg.EmptyStreakLimit {
			slog.Warn("empty detection streak, re-preparing detector", "frames", f.emptyStreak)
			if err := f.detector.Prepare(ctx); err != nil {
				slog.Error("detector re-preparation failed", "error", err)
			} else {
				f.emptyStreak = 0
			}
		}
		return nil, nil
	}
	f.emptyStreak = 0

	filtered := Filter(raw, f.cfg.Filter)
	results := append([]Detection(nil), filtered.AutoAccept...)

	candidates := make([]Detection, 0, len(filtered.NeedsVerification)+len(filtered.StrictGate))
	candidates = append(candidates, filtered.NeedsVerification...)
	candidates = append(candidates, filtered.StrictGate...)

	if f.scorer.Available() {
		results = append(results, f.verifyBatch(ctx, frame, candidates)...)
	} else {
		for _, det := range candidates {
			if det.Confidence >= f.cfg.NoVerifierGate {
				results = append(results, det)
			}
		}
	}

	results = f.backfill(results, candidates)

	final := NMS(results, f.cfg.FinalNMSIoU)
	// NMS leaves the set confidence-sorted; verification can relabel boxes,
	// so a per-label dedupe is still required.
	final = dedupeByLabel(final)
	return final, nil
}

// verifyBatch scores the top-quality candidates against the oracle and
// returns the survivors. If the oracle rejects every candidate the whole
// batch is kept unverified: availability is preferred over precision when
// the verifier itself looks degenerate.
func (f *Fuser) verifyBatch(ctx context.Context, frame image.Image, candidates []Detection) []Detection {
	batch := make([]Detection, len(candidates))
	copy(batch, candidates)
	sort.SliceStable(batch, func(i, j int) bool {
		return quality(batch[i]) > quality(batch[j])
	})
	if len(batch) > f.cfg.VerifyBudget {
		batch = batch[:f.cfg.VerifyBudget]
	}

	kept := make([]Detection, 0, len(batch))
	for _, det := range batch {
		verdict := f.scorer.Evaluate(ctx, det, cropRegion(frame, det.Box))
		observability.VerificationOutcomes.WithLabelValues(verdict.Outcome.String()).Inc()
		switch verdict.Outcome {
		case OutcomeReject:
			continue
		case OutcomeAccept:
			det.Label = verdict.Label
			det.Confidence = verdict.Confidence
		}
		kept = append(kept, det)
	}

	if len(kept) == 0 && len(batch) > 0 {
		slog.Debug("verifier rejected entire batch, keeping unverified candidates", "count", len(batch))
		return batch
	}
	return kept
}

// backfill tops the result set up with the highest-confidence unverified
// candidates until it reaches min(MinResults, candidates available).
func (f *Fuser) backfill(results, candidates []Detection) []Detection {
	floor := f.cfg.MinResults
	if len(candidates) < floor {
		floor = len(candidates)
	}
	if len(results) >= floor {
		return results
	}

	present := make(map[string]bool, len(results))
	for _, d := range results {
		present[d.ID] = true
	}

	byConf := make([]Detection, len(candidates))
	copy(byConf, candidates)
	sort.SliceStable(byConf, func(i, j int) bool {
		return byConf[i].Confidence > byConf[j].Confidence
	})

	for _, det := range byConf {
		if len(results) >= floor {
			break
		}
		if present[det.ID] {
			continue
		}
		present[det.ID] = true
		results = append(results, det)
	}
	return results
}

// quality ranks verification candidates: larger, more confident boxes are
// worth the oracle budget first.
func quality(d Detection) float64 {
	return d.Confidence * math.Sqrt(d.Box.Area())
}
