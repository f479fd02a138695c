// Package types provides the shared request and result types for the
// property search serving core.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Strategy identifies the execution plan the orchestrator chose for a request.
type Strategy string

const (
	StrategyHybrid     Strategy = "hybrid"
	StrategyText       Strategy = "text"
	StrategyVector     Strategy = "vector"
	StrategyCached     Strategy = "cached"
	StrategyFallback   Strategy = "fallback"
	StrategyOptimized  Strategy = "optimized"
	StrategySimplified Strategy = "simplified"
)

// SortField enumerates the supported result orderings.
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortPrice     SortField = "price"
	SortSize      SortField = "size"
	SortDate      SortField = "date"
)

// SortOrder is the direction applied to SortField.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

const (
	// MaxLimit caps the number of items a single request may ask for.
	MaxLimit = 100
	// DefaultLimit is applied when a request leaves Limit unset.
	DefaultLimit = 20
)

// PriceRange bounds a price filter. A zero Max means unbounded above.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SearchRequest is a normalized property search request. All filter fields
// are optional; Limit and Offset are clamped by Normalize.
type SearchRequest struct {
	QueryText    string      `json:"query,omitempty"`
	Location     string      `json:"location,omitempty"`
	PriceRange   *PriceRange `json:"price_range,omitempty"`
	PropertyType string      `json:"property_type,omitempty"`
	Bedrooms     *int        `json:"bedrooms,omitempty"`
	Bathrooms    *int        `json:"bathrooms,omitempty"`
	Features     []string    `json:"features,omitempty"`

	// Embedding is supplied by the caller or filled in by the embedding
	// client. It is deliberately excluded from the fingerprint.
	Embedding []float32 `json:"embedding,omitempty"`

	Limit     int       `json:"limit"`
	Offset    int       `json:"offset"`
	SortBy    SortField `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`

	// Deadline bounds the whole request. Zero means the server default.
	Deadline time.Time `json:"-"`
}

// Normalize clamps limits and applies defaults in place.
func (r *SearchRequest) Normalize() {
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.SortBy == "" {
		r.SortBy = SortRelevance
	}
	if r.SortOrder == "" {
		r.SortOrder = OrderDesc
	}
	r.QueryText = strings.TrimSpace(r.QueryText)
	r.Location = strings.TrimSpace(r.Location)
	r.PropertyType = strings.TrimSpace(r.PropertyType)
}

// Validate reports the first structural problem with the request.
func (r *SearchRequest) Validate() error {
	if r.Limit < 1 || r.Limit > MaxLimit {
		return fmt.Errorf("limit must be in [1, %d], got %d", MaxLimit, r.Limit)
	}
	if r.Offset < 0 {
		return fmt.Errorf("offset must be >= 0, got %d", r.Offset)
	}
	switch r.SortBy {
	case SortRelevance, SortPrice, SortSize, SortDate:
	default:
		return fmt.Errorf("unknown sort field %q", r.SortBy)
	}
	switch r.SortOrder {
	case OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("unknown sort order %q", r.SortOrder)
	}
	if r.PriceRange != nil && r.PriceRange.Max > 0 && r.PriceRange.Min > r.PriceRange.Max {
		return fmt.Errorf("price range min %.2f exceeds max %.2f", r.PriceRange.Min, r.PriceRange.Max)
	}
	return nil
}

// Fingerprint returns a stable hash of the normalized request, excluding the
// embedding. Two clients vectorizing the same text may produce slightly
// different embeddings; the text itself is part of the key, so they share a
// cache entry.
func (r *SearchRequest) Fingerprint() string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write("q", strings.ToLower(r.QueryText))
	write("loc", strings.ToLower(r.Location))
	write("type", strings.ToLower(r.PropertyType))
	if r.PriceRange != nil {
		write("price", fmt.Sprintf("%.2f-%.2f", r.PriceRange.Min, r.PriceRange.Max))
	}
	if r.Bedrooms != nil {
		write("bed", fmt.Sprintf("%d", *r.Bedrooms))
	}
	if r.Bathrooms != nil {
		write("bath", fmt.Sprintf("%d", *r.Bathrooms))
	}
	if len(r.Features) > 0 {
		feats := make([]string, len(r.Features))
		for i, f := range r.Features {
			feats[i] = strings.ToLower(strings.TrimSpace(f))
		}
		sort.Strings(feats)
		write(feats...)
	}
	write("page", fmt.Sprintf("%d:%d", r.Limit, r.Offset))
	write("sort", string(r.SortBy), string(r.SortOrder))
	return hex.EncodeToString(h.Sum(nil))
}

// HasEmbedding reports whether the request carries a usable vector.
func (r *SearchRequest) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// SearchResult is the outcome of one orchestrated search.
type SearchResult struct {
	Items        []Property     `json:"items"`
	Total        int            `json:"total"`
	StrategyUsed Strategy       `json:"strategy_used"`
	Elapsed      time.Duration  `json:"elapsed_ms"`
	Metadata     ResultMetadata `json:"metadata"`
}

// ResultMetadata captures the execution context of a result.
type ResultMetadata struct {
	PoolUtilization float64  `json:"pool_utilization"`
	Optimizations   []string `json:"optimizations,omitempty"`
	CacheHit        bool     `json:"cache_hit"`
	IndexesHinted   []string `json:"indexes_hinted,omitempty"`
	TextResults     int      `json:"text_results"`
	VectorResults   int      `json:"vector_results"`
}
