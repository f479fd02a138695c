package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

func textHits(ids ...string) []types.Property {
	out := make([]types.Property, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Property{ID: id, Title: "listing " + id})
	}
	return out
}

func vectorHit(id string, similarity float64) types.VectorHit {
	return types.VectorHit{
		Property:   types.Property{ID: id, Title: "listing " + id},
		Similarity: similarity,
	}
}

func mergedIDs(props []types.Property) []string {
	ids := make([]string, 0, len(props))
	for _, p := range props {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestMergeHybridWeightsBothSources(t *testing.T) {
	text := textHits("A", "B", "C")
	vector := []types.VectorHit{vectorHit("B", 0.9), vectorHit("D", 0.8)}

	out := mergeHybrid(text, vector, 0)
	require.Len(t, out, 4)

	// B carries both contributions: 0.6*(1-1/3) + 0.4*0.9 = 0.760.
	assert.Equal(t, []string{"B", "A", "D", "C"}, mergedIDs(out))
	require.NotNil(t, out[0].Relevance)
	assert.InDelta(t, 0.760, *out[0].Relevance, 1e-9)
	assert.InDelta(t, 0.600, *out[1].Relevance, 1e-9)
	assert.InDelta(t, 0.320, *out[2].Relevance, 1e-9)
	assert.InDelta(t, 0.200, *out[3].Relevance, 1e-9)

	// Only the dual-source hit exposes a similarity.
	require.NotNil(t, out[0].Similarity)
	assert.InDelta(t, 0.9, *out[0].Similarity, 1e-9)
	assert.Nil(t, out[1].Similarity)
}

func TestMergeHybridTextOnlyKeepsTextOrder(t *testing.T) {
	text := textHits("A", "B", "C", "D")

	out := mergeHybrid(text, nil, 0)

	assert.Equal(t, []string{"A", "B", "C", "D"}, mergedIDs(out))
	require.NotNil(t, out[0].Relevance)
	assert.InDelta(t, 0.6, *out[0].Relevance, 1e-9)
}

func TestMergeHybridVectorOnlyKeepsSimilarityOrder(t *testing.T) {
	vector := []types.VectorHit{
		vectorHit("X", 0.95),
		vectorHit("Y", 0.80),
		vectorHit("Z", 0.72),
	}

	out := mergeHybrid(nil, vector, 0)

	assert.Equal(t, []string{"X", "Y", "Z"}, mergedIDs(out))
	require.NotNil(t, out[0].Relevance)
	assert.InDelta(t, 0.4*0.95, *out[0].Relevance, 1e-9)
}

func TestMergeHybridTruncatesToLimit(t *testing.T) {
	text := textHits("A", "B", "C")
	vector := []types.VectorHit{vectorHit("D", 0.9), vectorHit("E", 0.85)}

	out := mergeHybrid(text, vector, 2)

	require.Len(t, out, 2)
	// A scores 0.600, D 0.360, B 0.400: top two are A then B.
	assert.Equal(t, []string{"A", "B"}, mergedIDs(out))
}

func TestMergeHybridEqualScoresAreStable(t *testing.T) {
	// Two vector-only hits with equal similarity keep arrival order.
	vector := []types.VectorHit{vectorHit("P", 0.5), vectorHit("Q", 0.5)}

	out := mergeHybrid(nil, vector, 0)

	assert.Equal(t, []string{"P", "Q"}, mergedIDs(out))
}

func TestMergeHybridEmptyInputs(t *testing.T) {
	assert.Empty(t, mergeHybrid(nil, nil, 10))
}
