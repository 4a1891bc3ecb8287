package vision

import "github.com/your-org/spotter/internal/geom"

// Detection is one labeled box produced by a detector, normalized to the
// unit square. Detections are immutable values: relabeling or rescoring a
// detection produces a copy, never an in-place mutation.
type Detection struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        geom.Rect `json:"box"`
}

// Confidence bucket boundaries. These are tuned policy, not incidental
// values; keep them named so they stay independently testable.
const (
	// AutoAcceptConfidence marks detections trusted without verification.
	AutoAcceptConfidence = 0.80
	// VerifyFloor is the bottom of the normal verification band.
	VerifyFloor = 0.20
	// NoiseFloor is the lowest confidence worth considering at all.
	// Detections between NoiseFloor and VerifyFloor sit below the detector's
	// own emission threshold and only survive a strict verification gate.
	NoiseFloor = 0.10
)

// FilteredDetections partitions a frame's surviving detections into three
// disjoint confidence buckets. All() preserves the bucket order.
type FilteredDetections struct {
	AutoAccept        []Detection
	NeedsVerification []Detection
	StrictGate        []Detection
}

// All returns the concatenation autoAccept + needsVerification + strictGate.
func (f FilteredDetections) All() []Detection {
	out := make([]Detection, 0, f.Count())
	out = append(out, f.AutoAccept...)
	out = append(out, f.NeedsVerification...)
	out = append(out, f.StrictGate...)
	return out
}

// Count returns the total number of detections across all buckets.
func (f FilteredDetections) Count() int {
	return len(f.AutoAccept) + len(f.NeedsVerification) + len(f.StrictGate)
}
