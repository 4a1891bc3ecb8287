package vision

import (
	"math"
	"strings"
)

// LabelEntry is one candidate label with its precomputed text embedding.
type LabelEntry struct {
	Label     string
	Embedding []float32
}

// LabelBank is an ordered vocabulary of candidate labels with precomputed
// embeddings for open-vocabulary matching. The verification oracle works
// without one (binary confirmation) but gains relabeling ability with it.
type LabelBank struct {
	entries []LabelEntry
	index   map[string]int
}

// NewLabelBank builds a bank from entries, preserving their order.
// Lookup is case-insensitive; later duplicates win.
func NewLabelBank(entries []LabelEntry) *LabelBank {
	b := &LabelBank{
		entries: entries,
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		b.index[strings.ToLower(e.Label)] = i
	}
	return b
}

// Len returns the number of bank entries.
func (b *LabelBank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Lookup returns the embedding for a label, case-insensitive.
func (b *LabelBank) Lookup(label string) ([]float32, bool) {
	if b == nil {
		return nil, false
	}
	i, ok := b.index[strings.ToLower(label)]
	if !ok {
		return nil, false
	}
	return b.entries[i].Embedding, true
}

// Best returns the bank label whose embedding is closest to the query by
// cosine similarity, with the similarity in [-1, 1]. Empty banks return
// ("", -1).
func (b *LabelBank) Best(embedding []float32) (string, float64) {
	bestLabel := ""
	bestSim := -1.0
	if b == nil {
		return bestLabel, bestSim
	}
	for _, e := range b.entries {
		sim := CosineSimilarity(embedding, e.Embedding)
		if sim > bestSim {
			bestSim = sim
			bestLabel = e.Label
		}
	}
	return bestLabel, bestSim
}

// CosineSimilarity computes cosine similarity between two L2-normalized
// vectors, clamped to [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Min(1.0, math.Max(-1.0, dot))
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
