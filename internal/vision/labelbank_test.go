package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelBankLookupCaseInsensitive(t *testing.T) {
	bank := NewLabelBank([]LabelEntry{
		{Label: "Coffee Cup", Embedding: []float32{1, 0, 0}},
		{Label: "dog", Embedding: []float32{0, 1, 0}},
	})

	emb, ok := bank.Lookup("coffee cup")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, emb)

	_, ok = bank.Lookup("cat")
	assert.False(t, ok)

	assert.Equal(t, 2, bank.Len())
}

func TestLabelBankBestPicksClosest(t *testing.T) {
	bank := NewLabelBank([]LabelEntry{
		{Label: "cup", Embedding: []float32{1, 0, 0}},
		{Label: "dog", Embedding: []float32{0, 1, 0}},
	})

	label, sim := bank.Best([]float32{0.9, 0.1, 0})
	assert.Equal(t, "cup", label)
	assert.Greater(t, sim, 0.8)
}

func TestLabelBankNilSafe(t *testing.T) {
	var bank *LabelBank

	assert.Zero(t, bank.Len())

	_, ok := bank.Lookup("cup")
	assert.False(t, ok)

	label, sim := bank.Best([]float32{1, 0})
	assert.Empty(t, label)
	assert.Equal(t, -1.0, sim)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Length mismatch and empty inputs degrade to zero.
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestNormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
