package retrieval

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElbowCutoff_Example(t *testing.T) {
	scores := []float64{0.92, 0.90, 0.88, 0.65, 0.63, 0.61}

	cutoff, ok := ElbowCutoff(scores)
	require.True(t, ok)
	assert.InDelta(t, 0.65, cutoff, 1e-9)

	results := make([]SearchResult, len(scores))
	for i, s := range scores {
		results[i] = SearchResult{ID: string(rune('a' + i)), Score: s}
	}
	kept := applyElbow(results)
	require.Len(t, kept, 3)
	assert.Equal(t, "c", kept[2].ID)
}

func TestElbowCutoff_AlwaysClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 500; n++ {
		scores := make([]float64, 2+rng.Intn(12))
		for i := range scores {
			scores[i] = rng.Float64()
		}
		slices.Sort(scores)
		slices.Reverse(scores)

		cutoff, ok := ElbowCutoff(scores)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, cutoff, ElbowFloor)
		assert.LessOrEqual(t, cutoff, ElbowCeiling)
	}
}

func TestElbowCutoff_Skips(t *testing.T) {
	_, ok := ElbowCutoff(nil)
	assert.False(t, ok)
	_, ok = ElbowCutoff([]float64{0.8})
	assert.False(t, ok)
	_, ok = ElbowCutoff([]float64{0.7, 0.7, 0.7})
	assert.False(t, ok)

	one := []SearchResult{{ID: "x", Score: 0.2}}
	assert.Equal(t, one, applyElbow(one))
}

func TestElbowCutoff_ClampsLowCutoff(t *testing.T) {
	cutoff, ok := ElbowCutoff([]float64{0.95, 0.93, 0.2})
	require.True(t, ok)
	assert.Equal(t, ElbowFloor, cutoff)

	cutoff, ok = ElbowCutoff([]float64{0.99, 0.95, 0.94})
	require.True(t, ok)
	assert.Equal(t, ElbowCeiling, cutoff)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"microsoft", "365", "e3", "plan"}, Tokenize("Microsoft 365, E3-Plan"))
	assert.Equal(t, []string{"strasse"}, Tokenize("STRASSE"))
	assert.Equal(t, Tokenize("Straße"), Tokenize("STRASSE"))
	assert.Empty(t, Tokenize(" -- "))
}

func TestBM25_MatchesFormula(t *testing.T) {
	passages := []string{
		"apple banana apple",
		"banana cherry",
		"cherry date elderberry fig",
	}
	idx := NewBM25(passages, 1.2, 0.75)

	avgdl := 3.0
	idf := math.Log((3-1+0.5)/(1+0.5) + 1)
	f, dl := 2.0, 3.0
	want := idf * f * (1.2 + 1) / (f + 1.2*(1-0.75+0.75*dl/avgdl))

	got := idx.Scores("apple")
	assert.InDelta(t, want, got[0], 1e-12)
	assert.Zero(t, got[1])
	assert.Zero(t, got[2])

	// Pure function of the corpus and the query.
	again := NewBM25(passages, 1.2, 0.75).Scores("apple")
	assert.Equal(t, got, again)
	assert.Equal(t, got, idx.Scores("apple apple"), "repeated query terms count once")
}

func TestBM25_LengthNormalization(t *testing.T) {
	idx := NewBM25([]string{"cherry banana", "cherry date elderberry fig grape"}, 0, -1)
	got := idx.Scores("cherry")
	assert.Greater(t, got[0], got[1], "shorter passage with the same tf scores higher")
	assert.Positive(t, idx.IDF("cherry"), "idf stays non-negative for common terms")
}

func TestBM25_EmptyCorpus(t *testing.T) {
	assert.Empty(t, NewBM25(nil, 1.2, 0.75).Scores("anything"))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, MinMax([]float64{2, 4, 6}))
	assert.Equal(t, []float64{1, 1}, MinMax([]float64{0.3, 0.3}))
	assert.Equal(t, []float64{0, 0}, MinMax([]float64{0, 0}))
	assert.Empty(t, MinMax(nil))
}

func TestFuse(t *testing.T) {
	got := Fuse([]float64{0.2, 0.95}, []float64{1.5, 0}, 0.7)
	assert.InDelta(t, 0.3, got[0], 1e-9)
	assert.InDelta(t, 0.7, got[1], 1e-9)
}

func TestAverageRetrieved(t *testing.T) {
	perRun := [][]float64{
		{0.9, 0, 0.5},
		{0.7, 0.6, 0},
	}
	got := averageRetrieved(perRun, 20)
	assert.InDelta(t, 0.8, got[0], 1e-9)
	assert.InDelta(t, 0.6, got[1], 1e-9, "only the retrieving run counts")
	assert.InDelta(t, 0.5, got[2], 1e-9)

	got = averageRetrieved(perRun, 1)
	assert.InDelta(t, 0.8, got[0], 1e-9)
	assert.Zero(t, got[1])
	assert.Zero(t, got[2])
}
