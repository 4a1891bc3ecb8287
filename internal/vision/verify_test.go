package vision

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/spotter/internal/geom"
)

type fakeOracle struct {
	ready bool
	best  string
	score float64
	// scores, when set, overrides score per queried label.
	scores map[string]float64
	err    error
	calls  int
}

func (o *fakeOracle) Ready() bool { return o.ready }

func (o *fakeOracle) Confirm(_ context.Context, _ image.Image, label string) (float64, error) {
	o.calls++
	return o.scoreFor(label), o.err
}

func (o *fakeOracle) BestMatch(_ context.Context, _ image.Image, label string) (string, float64, error) {
	o.calls++
	best := o.best
	if best == "" {
		best = label
	}
	return best, o.scoreFor(label), o.err
}

func (o *fakeOracle) scoreFor(label string) float64 {
	if o.scores != nil {
		return o.scores[label]
	}
	return o.score
}

func testCrop() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 64))
}

func TestScorerRejectsBelowKeepGate(t *testing.T) {
	s := NewScorer(&fakeOracle{ready: true, best: "cup", score: 0.50}, DefaultVerifyConfig())
	d := det("a", "cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, testCrop())

	assert.Equal(t, OutcomeReject, v.Outcome)
}

func TestScorerAcceptsAndRelabels(t *testing.T) {
	s := NewScorer(&fakeOracle{ready: true, best: "mug", score: 0.82}, DefaultVerifyConfig())
	d := det("a", "cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, testCrop())

	assert.Equal(t, OutcomeAccept, v.Outcome)
	assert.Equal(t, "mug", v.Label)
	// Confidence rises to the oracle score, never falls.
	assert.InDelta(t, 0.82, v.Confidence, 1e-9)
}

func TestScorerAcceptKeepsHigherDetectorConfidence(t *testing.T) {
	s := NewScorer(&fakeOracle{ready: true, best: "cup", score: 0.81}, DefaultVerifyConfig())
	d := det("a", "cup", 0.95, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, testCrop())

	assert.Equal(t, OutcomeAccept, v.Outcome)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
}

func TestScorerPassesThroughAmbiguousBand(t *testing.T) {
	s := NewScorer(&fakeOracle{ready: true, best: "mug", score: 0.65}, DefaultVerifyConfig())
	d := det("a", "cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, testCrop())

	assert.Equal(t, OutcomePassThrough, v.Outcome)
	assert.Equal(t, "cup", v.Label)
	assert.InDelta(t, 0.50, v.Confidence, 1e-9)
}

func TestScorerStrictGateForMarginalDetections(t *testing.T) {
	// 0.82 clears the relaxed gate but not the strict one applied to
	// detections below the relaxed-at confidence.
	s := NewScorer(&fakeOracle{ready: true, best: "cup", score: 0.82}, DefaultVerifyConfig())
	d := det("a", "cup", 0.15, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, testCrop())
	assert.Equal(t, OutcomePassThrough, v.Outcome)

	s = NewScorer(&fakeOracle{ready: true, best: "cup", score: 0.86}, DefaultVerifyConfig())
	v = s.Evaluate(context.Background(), d, testCrop())
	assert.Equal(t, OutcomeAccept, v.Outcome)
}

func TestScorerPassesThroughWhenUnavailable(t *testing.T) {
	d := det("a", "cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	cases := map[string]*Scorer{
		"not ready":  NewScorer(&fakeOracle{ready: false}, DefaultVerifyConfig()),
		"nil oracle": NewScorer(nil, DefaultVerifyConfig()),
		"nil scorer": nil,
	}

	for name, s := range cases {
		v := s.Evaluate(context.Background(), d, testCrop())
		assert.Equal(t, OutcomePassThrough, v.Outcome, name)
		assert.Equal(t, "cup", v.Label, name)
	}
}

func TestScorerPassesThroughTinyOrMissingCrop(t *testing.T) {
	oracle := &fakeOracle{ready: true, best: "cup", score: 0.99}
	s := NewScorer(oracle, DefaultVerifyConfig())
	d := det("a", "cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, nil)
	assert.Equal(t, OutcomePassThrough, v.Outcome)

	v = s.Evaluate(context.Background(), d, image.NewRGBA(image.Rect(0, 0, 5, 5)))
	assert.Equal(t, OutcomePassThrough, v.Outcome)

	assert.Zero(t, oracle.calls)
}

func TestScorerPassesThroughOnOracleError(t *testing.T) {
	s := NewScorer(&fakeOracle{ready: true, err: errors.New("session busy")}, DefaultVerifyConfig())
	d := det("a", "cup", 0.50, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2})

	v := s.Evaluate(context.Background(), d, testCrop())

	assert.Equal(t, OutcomePassThrough, v.Outcome)
	assert.Equal(t, "cup", v.Label)
}
