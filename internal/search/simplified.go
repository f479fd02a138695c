package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/vectorsearch"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// simplifiedOptimizations labels what the load-shedding plan gives up, for
// result metadata.
var simplifiedOptimizations = []string{"minimal_columns", "no_joins", "recency_order"}

// buildSimplifiedQuery produces the load-shedding plan: a handful of
// columns, no embedding join, newest listings first. It reuses the filter
// predicates the vector builder emits so both plans agree on filtering.
func buildSimplifiedQuery(req *types.SearchRequest) (string, []interface{}) {
	var (
		sb     strings.Builder
		params []interface{}
	)
	next := func(v interface{}) string {
		params = append(params, v)
		return fmt.Sprintf("$%d", len(params))
	}

	sb.WriteString(`SELECT p.id, p.title, p.price, p.location, p.property_type, p.bedrooms, p.bathrooms, p.created_at FROM properties p WHERE 1=1`)
	if req.Location != "" {
		sb.WriteString(" AND p.location ILIKE " + next("%"+req.Location+"%"))
	}
	if req.PriceRange != nil {
		if req.PriceRange.Min > 0 {
			sb.WriteString(" AND p.price >= " + next(req.PriceRange.Min))
		}
		if req.PriceRange.Max > 0 {
			sb.WriteString(" AND p.price <= " + next(req.PriceRange.Max))
		}
	}
	if req.PropertyType != "" {
		sb.WriteString(" AND p.property_type = " + next(req.PropertyType))
	}
	if req.Bedrooms != nil {
		sb.WriteString(" AND p.bedrooms = " + next(*req.Bedrooms))
	}
	sb.WriteString(" ORDER BY p.created_at DESC")
	sb.WriteString(" LIMIT " + next(req.Limit))
	sb.WriteString(" OFFSET " + next(req.Offset))

	return sb.String(), params
}

// runSimplified executes the load-shedding plan on an already leased
// session.
func runSimplified(ctx context.Context, q vectorsearch.Querier, req *types.SearchRequest) ([]types.Property, error) {
	sql, params := buildSimplifiedQuery(req)
	rows, err := q.QueryContext(ctx, sql, params...)
	if err != nil {
		if ctxErr := apperrors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.Wrap(apperrors.KindQueryFailed, "simplified property query", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Property
	for rows.Next() {
		var p types.Property
		err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Location, &p.PropertyType, &p.Bedrooms, &p.Bathrooms, &p.CreatedAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindQueryFailed, "scan simplified row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindQueryFailed, "iterate simplified rows", err)
	}
	return out, nil
}
