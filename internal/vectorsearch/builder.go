// Package vectorsearch builds and runs parametric similarity queries
// against the relational store's vector operator.
package vectorsearch

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSimilarityThreshold is the minimum similarity retained when the
// caller does not override it.
const DefaultSimilarityThreshold = 0.7

// Filters are the structural constraints applied alongside the distance
// predicate.
type Filters struct {
	Location     string
	PriceMin     float64
	PriceMax     float64
	PropertyType string
	Bedrooms     *int
	Bathrooms    *int
}

// Options tune one built query.
type Options struct {
	SimilarityThreshold float64
	Limit               int
	Offset              int
}

// Query is the pure output of the builder: SQL text, positional params and
// the index hints the planner is expected to use.
type Query struct {
	SQL    string
	Params []interface{}
	Hints  []string
}

// BuildQuery produces the similarity query. It is a pure function: no
// shared builder state, same inputs give the same output. Distance below
// 1 - threshold is retained; ordering is distance ascending.
func BuildQuery(embedding []float32, f Filters, opts Options) Query {
	threshold := opts.SimilarityThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSimilarityThreshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	params := []interface{}{VectorLiteral(embedding), 1 - threshold}
	var where []string

	next := func(v interface{}) string {
		params = append(params, v)
		return "$" + strconv.Itoa(len(params))
	}

	if f.Location != "" {
		where = append(where, "p.location = "+next(f.Location))
	}
	if f.PriceMin > 0 {
		where = append(where, "p.price >= "+next(f.PriceMin))
	}
	if f.PriceMax > 0 {
		where = append(where, "p.price <= "+next(f.PriceMax))
	}
	if f.PropertyType != "" {
		where = append(where, "p.property_type = "+next(f.PropertyType))
	}
	if f.Bedrooms != nil {
		where = append(where, "p.bedrooms = "+next(*f.Bedrooms))
	}
	if f.Bathrooms != nil {
		where = append(where, "p.bathrooms = "+next(*f.Bathrooms))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT p.id, p.title, p.description, p.price, p.location, p.property_type,
	p.bedrooms, p.bathrooms, p.size, p.features, p.created_at, p.updated_at,
	pe.combined_embedding <=> $1::vector AS distance
FROM properties p
JOIN property_embeddings pe ON pe.property_id = p.id
WHERE pe.combined_embedding <=> $1::vector < $2`)
	for _, cond := range where {
		sb.WriteString("\n  AND ")
		sb.WriteString(cond)
	}
	sb.WriteString("\nORDER BY distance ASC")
	sb.WriteString("\nLIMIT " + next(limit))
	sb.WriteString(" OFFSET " + next(opts.Offset))

	return Query{
		SQL:    sb.String(),
		Params: params,
		Hints:  IndexHints(),
	}
}

// IndexHints lists the indexes similarity queries are planned against.
// Callers surface these in result metadata.
func IndexHints() []string {
	return []string{"property_embeddings_combined_idx", "properties_location_idx"}
}

// VectorLiteral renders an embedding as the store's vector text format.
func VectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ","))
}
