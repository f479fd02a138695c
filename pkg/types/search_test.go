package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	r := SearchRequest{QueryText: "  garden flat  ", Location: " London "}
	r.Normalize()

	assert.Equal(t, DefaultLimit, r.Limit)
	assert.Equal(t, 0, r.Offset)
	assert.Equal(t, SortRelevance, r.SortBy)
	assert.Equal(t, OrderDesc, r.SortOrder)
	assert.Equal(t, "garden flat", r.QueryText)
	assert.Equal(t, "London", r.Location)
}

func TestNormalizeClampsLimitAndOffset(t *testing.T) {
	r := SearchRequest{Limit: 500, Offset: -3}
	r.Normalize()
	assert.Equal(t, MaxLimit, r.Limit)
	assert.Equal(t, 0, r.Offset)
}

func TestValidateErrors(t *testing.T) {
	valid := func() SearchRequest {
		r := SearchRequest{QueryText: "flat"}
		r.Normalize()
		return r
	}

	r := valid()
	require.NoError(t, r.Validate())

	r = valid()
	r.Limit = 0
	assert.Error(t, r.Validate())

	r = valid()
	r.Offset = -1
	assert.Error(t, r.Validate())

	r = valid()
	r.SortBy = "colour"
	assert.Error(t, r.Validate())

	r = valid()
	r.SortOrder = "sideways"
	assert.Error(t, r.Validate())

	r = valid()
	r.PriceRange = &PriceRange{Min: 500000, Max: 100000}
	assert.Error(t, r.Validate())

	// Zero max means unbounded above, so min may exceed it.
	r = valid()
	r.PriceRange = &PriceRange{Min: 500000}
	assert.NoError(t, r.Validate())
}

func TestFingerprintStable(t *testing.T) {
	bed := 2
	a := SearchRequest{
		QueryText:  "Garden Flat",
		Location:   "London",
		PriceRange: &PriceRange{Min: 100000, Max: 400000},
		Bedrooms:   &bed,
		Features:   []string{"garden", "parking"},
	}
	a.Normalize()

	bed2 := 2
	b := SearchRequest{
		QueryText:  "Garden Flat",
		Location:   "London",
		PriceRange: &PriceRange{Min: 100000, Max: 400000},
		Bedrooms:   &bed2,
		Features:   []string{"garden", "parking"},
	}
	b.Normalize()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintIgnoresEmbeddingAndCase(t *testing.T) {
	a := SearchRequest{QueryText: "garden flat"}
	a.Normalize()
	b := SearchRequest{QueryText: "GARDEN FLAT", Embedding: []float32{0.1, 0.2}}
	b.Normalize()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintFeatureOrderInsensitive(t *testing.T) {
	a := SearchRequest{Features: []string{"garden", "parking"}}
	a.Normalize()
	b := SearchRequest{Features: []string{"Parking", " garden "}}
	b.Normalize()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintDistinguishesFilters(t *testing.T) {
	a := SearchRequest{QueryText: "flat", Location: "London"}
	a.Normalize()
	b := SearchRequest{QueryText: "flat", Location: "Leeds"}
	b.Normalize()
	c := SearchRequest{QueryText: "flat", Location: "London", Offset: 20}
	c.Normalize()

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestHasEmbedding(t *testing.T) {
	r := SearchRequest{}
	assert.False(t, r.HasEmbedding())
	r.Embedding = []float32{0.5}
	assert.True(t, r.HasEmbedding())
}

func TestSearchResultCarriesTiming(t *testing.T) {
	res := SearchResult{
		Items:        []Property{{ID: "p1"}},
		Total:        1,
		StrategyUsed: StrategyHybrid,
		Elapsed:      42 * time.Millisecond,
	}
	assert.Equal(t, StrategyHybrid, res.StrategyUsed)
	assert.Equal(t, 42*time.Millisecond, res.Elapsed)
}
