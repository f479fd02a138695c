package vectorsearch

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// Querier is the slice of a session the executor needs. *sql.DB satisfies
// it too, which keeps tests driver-free.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// boostReorderFraction bounds how deep the relevance boost may reorder
// results, to keep ranking explainable.
const boostReorderFraction = 0.2

// recentListingWindow is how new a listing must be to receive the recency
// boost.
const recentListingWindow = 30 * 24 * time.Hour

// Executor runs built queries on a leased session and ranks the hits.
type Executor struct {
	threshold float64
	log       logging.Logger
	now       func() time.Time
}

// NewExecutor creates an executor with the given similarity threshold.
func NewExecutor(threshold float64, log logging.Logger) *Executor {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSimilarityThreshold
	}
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Executor{threshold: threshold, log: log.WithComponent("vectorsearch"), now: time.Now}
}

// Search executes a similarity query and returns hits ordered by distance,
// with the bounded relevance boost applied to the head of the list.
func (e *Executor) Search(ctx context.Context, q Querier, embedding []float32, f Filters, limit, offset int) ([]types.VectorHit, error) {
	query := BuildQuery(embedding, f, Options{
		SimilarityThreshold: e.threshold,
		Limit:               limit,
		Offset:              offset,
	})

	rows, err := q.QueryContext(ctx, query.SQL, query.Params...)
	if err != nil {
		if ctxErr := apperrors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.Wrap(apperrors.KindQueryFailed, "vector similarity query", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []types.VectorHit
	for rows.Next() {
		var p types.Property
		var description sql.NullString
		var distance float64
		err := rows.Scan(
			&p.ID, &p.Title, &description, &p.Price, &p.Location, &p.PropertyType,
			&p.Bedrooms, &p.Bathrooms, &p.Size, pq.Array(&p.Features),
			&p.CreatedAt, &p.UpdatedAt, &distance,
		)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindQueryFailed, "scan vector hit", err)
		}
		p.Description = description.String
		similarity := 1 - distance
		p.Similarity = &similarity
		hits = append(hits, types.VectorHit{Property: p, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindQueryFailed, "iterate vector hits", err)
	}

	e.applyBoost(hits)
	return hits, nil
}

// applyBoost multiplies similarity by a small per-row factor for favored
// property types and fresh listings, then re-sorts only the head of the
// list. Rows past the first 20% keep their distance order.
func (e *Executor) applyBoost(hits []types.VectorHit) {
	if len(hits) < 2 {
		return
	}
	head := int(float64(len(hits)) * boostReorderFraction)
	if head < 2 {
		return
	}
	type scored struct {
		hit   types.VectorHit
		score float64
	}
	segment := make([]scored, head)
	for i := 0; i < head; i++ {
		segment[i] = scored{
			hit:   hits[i],
			score: hits[i].Similarity * e.boostFactor(hits[i].Property),
		}
	}
	sort.SliceStable(segment, func(i, j int) bool {
		return segment[i].score > segment[j].score
	})
	for i := 0; i < head; i++ {
		hits[i] = segment[i].hit
	}
}

func (e *Executor) boostFactor(p types.Property) float64 {
	factor := 1.0
	switch p.PropertyType {
	case "house", "apartment":
		factor *= 1.05
	}
	if e.now().Sub(p.CreatedAt) < recentListingWindow {
		factor *= 1.05
	}
	return factor
}
