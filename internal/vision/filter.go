package vision

import (
	"sort"
	"strings"

	"github.com/your-org/spotter/internal/geom"
)

// FilterConfig controls the single-frame detection filter.
type FilterConfig struct {
	// MinBoxSize drops boxes whose smaller side is below this fraction.
	MinBoxSize float64
	// MaxBoxAreaRatio drops boxes covering more than this fraction of the frame.
	MaxBoxAreaRatio float64
	// NMSIoUThreshold is the overlap at which a lower-confidence box is suppressed.
	NMSIoUThreshold float64
	// MaxInstancesPerClass caps detections per label; 0 means unlimited.
	MaxInstancesPerClass int
	// AllowedLabels optionally restricts labels to this set, each with its own
	// minimum confidence. Empty means all labels pass.
	AllowedLabels map[string]float64
}

// DefaultFilterConfig returns the filter tuning used in production.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinBoxSize:           0.02,
		MaxBoxAreaRatio:      0.90,
		NMSIoUThreshold:      0.45,
		MaxInstancesPerClass: 0,
	}
}

// Filter runs the per-frame filter pipeline: size filter, greedy NMS,
// optional per-class cap, then confidence bucketing. Pure function;
// deterministic for a given input and config. The three output buckets
// partition the surviving set exactly.
func Filter(dets []Detection, cfg FilterConfig) FilteredDetections {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Box.MinSide() < cfg.MinBoxSize {
			continue
		}
		if d.Box.Area() > cfg.MaxBoxAreaRatio {
			continue
		}
		if len(cfg.AllowedLabels) > 0 {
			minConf, ok := cfg.AllowedLabels[strings.ToLower(d.Label)]
			if !ok || d.Confidence < minConf {
				continue
			}
		}
		kept = append(kept, d)
	}

	kept = NMS(kept, cfg.NMSIoUThreshold)

	if cfg.MaxInstancesPerClass > 0 {
		kept = capPerClass(kept, cfg.MaxInstancesPerClass)
	}

	// Bucketing happens last so the thresholds only apply to detections
	// that survived geometric filtering.
	var out FilteredDetections
	for _, d := range kept {
		switch {
		case d.Confidence > AutoAcceptConfidence:
			out.AutoAccept = append(out.AutoAccept, d)
		case d.Confidence >= VerifyFloor:
			out.NeedsVerification = append(out.NeedsVerification, d)
		case d.Confidence >= NoiseFloor:
			out.StrictGate = append(out.StrictGate, d)
		}
	}
	return out
}

// NMS performs greedy non-maximum suppression: sort by confidence
// descending, keep the best box, suppress any not-yet-suppressed box whose
// IoU with it reaches the threshold. Quadratic worst case, which is fine
// for post-filter detection counts.
func NMS(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) == 0 {
		return dets
	}

	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	keep := make([]bool, len(sorted))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(sorted); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if !keep[j] {
				continue
			}
			if geom.IoU(sorted[i].Box, sorted[j].Box) >= iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Detection, 0, len(sorted))
	for i, d := range sorted {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

// capPerClass keeps at most n detections per label. Input is already
// confidence-sorted, so preserving order keeps the strongest instances.
func capPerClass(dets []Detection, n int) []Detection {
	counts := make(map[string]int, len(dets))
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		key := strings.ToLower(d.Label)
		if counts[key] >= n {
			continue
		}
		counts[key]++
		out = append(out, d)
	}
	return out
}

// dedupeByLabel keeps only the first detection per distinct label,
// case-insensitive. Input must be confidence-sorted descending.
func dedupeByLabel(dets []Detection) []Detection {
	seen := make(map[string]bool, len(dets))
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		key := strings.ToLower(d.Label)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
