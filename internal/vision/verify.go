package vision

import (
	"context"
	"image"
	"log/slog"
)

// Outcome is the three-way result of verifying one detection. The split
// matters: collapsing it to accept/reject loses precision on the ambiguous
// middle band.
type Outcome int

const (
	// OutcomePassThrough keeps the original label and confidence unchanged.
	OutcomePassThrough Outcome = iota
	// OutcomeAccept confirms (and possibly relabels) the detection.
	OutcomeAccept
	// OutcomeReject drops the detection entirely.
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccept:
		return "accept"
	case OutcomeReject:
		return "reject"
	default:
		return "pass_through"
	}
}

// Verdict carries the outcome plus the possibly-updated label and confidence.
// Label and Confidence are only meaningful for Accept and PassThrough.
type Verdict struct {
	Outcome    Outcome
	Label      string
	Confidence float64
}

// Oracle scores how well an image crop matches a candidate label. An oracle
// may be temporarily unavailable (model still loading); the scorer treats
// that as pass-through, never as an error.
type Oracle interface {
	Ready() bool
	// Confirm scores the crop against a single label. Binary-confirmation
	// mode: usable without a label bank.
	Confirm(ctx context.Context, crop image.Image, label string) (float64, error)
	// BestMatch returns the bank label closest to the crop with its score.
	// When no bank is loaded it falls back to Confirm semantics on the
	// provided label.
	BestMatch(ctx context.Context, crop image.Image, label string) (string, float64, error)
}

// VerifyConfig holds the tiered verification gates. The tiering is
// deliberate tuned policy: already-plausible detections need a lower bar to
// confirm, while marginal ones need stronger agreement.
type VerifyConfig struct {
	// AcceptGate is the strict bar applied to marginal detections.
	AcceptGate float64
	// RelaxedGate applies when the detector's own confidence was already
	// at or above RelaxedAtConfidence.
	RelaxedGate         float64
	RelaxedAtConfidence float64
	// MinKeepGate is the score below which the oracle actively disagrees
	// and the detection is dropped.
	MinKeepGate float64
	// MinCropSize is the smallest crop side (pixels) worth scoring.
	MinCropSize int
}

// DefaultVerifyConfig returns the production gate tuning.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		AcceptGate:          0.85,
		RelaxedGate:         0.80,
		RelaxedAtConfidence: 0.30,
		MinKeepGate:         0.60,
		MinCropSize:         10,
	}
}

// Scorer decides accept / relabel / drop / pass-through for a single
// candidate detection using the oracle.
type Scorer struct {
	oracle Oracle
	cfg    VerifyConfig
}

func NewScorer(oracle Oracle, cfg VerifyConfig) *Scorer {
	return &Scorer{oracle: oracle, cfg: cfg}
}

// Available reports whether the scorer can do useful work right now.
func (s *Scorer) Available() bool {
	return s != nil && s.oracle != nil && s.oracle.Ready()
}

// Evaluate applies the tiered gate policy to one detection and its crop.
// Oracle unavailability, undersized crops, and per-call oracle failures all
// degrade to pass-through; they are logged, never surfaced.
func (s *Scorer) Evaluate(ctx context.Context, det Detection, crop image.Image) Verdict {
	pass := Verdict{Outcome: OutcomePassThrough, Label: det.Label, Confidence: det.Confidence}

	if !s.Available() {
		return pass
	}
	if crop == nil {
		return pass
	}
	if b := crop.Bounds(); b.Dx() < s.cfg.MinCropSize || b.Dy() < s.cfg.MinCropSize {
		return pass
	}

	best, score, err := s.oracle.BestMatch(ctx, crop, det.Label)
	if err != nil {
		slog.Debug("verification oracle call failed", "label", det.Label, "error", err)
		return pass
	}

	gate := s.cfg.AcceptGate
	if det.Confidence >= s.cfg.RelaxedAtConfidence {
		gate = s.cfg.RelaxedGate
	}

	switch {
	case score < s.cfg.MinKeepGate:
		return Verdict{Outcome: OutcomeReject}
	case score >= gate:
		label := det.Label
		if best != "" {
			label = best
		}
		conf := det.Confidence
		if score > conf {
			conf = score
		}
		return Verdict{Outcome: OutcomeAccept, Label: label, Confidence: conf}
	default:
		return pass
	}
}
