package search

import (
	"sort"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// Weights for the hybrid merge. A hit present in only one source keeps
// that source's weighted score, so a source that returned nothing
// contributes exactly zero and the surviving order is the other source's.
const (
	textWeight   = 0.6
	vectorWeight = 0.4
)

// mergeHybrid combines keyword and similarity hits into one ranked list.
// Text hits are scored 1 - rank/|hits| by their position, vector hits by
// similarity; an item found by both gets the weighted sum. The result is
// sorted by combined score descending and truncated to limit.
func mergeHybrid(textHits []types.Property, vectorHits []types.VectorHit, limit int) []types.Property {
	type merged struct {
		prop  types.Property
		score float64
	}

	order := make([]string, 0, len(textHits)+len(vectorHits))
	byID := make(map[string]*merged, len(textHits)+len(vectorHits))

	n := len(textHits)
	for rank, p := range textHits {
		score := textWeight * (1 - float64(rank)/float64(n))
		byID[p.ID] = &merged{prop: p, score: score}
		order = append(order, p.ID)
	}

	for _, h := range vectorHits {
		contribution := vectorWeight * h.Similarity
		if m, ok := byID[h.Property.ID]; ok {
			m.score += contribution
			sim := h.Similarity
			m.prop.Similarity = &sim
			continue
		}
		byID[h.Property.ID] = &merged{prop: h.Property, score: contribution}
		order = append(order, h.Property.ID)
	}

	out := make([]types.Property, 0, len(order))
	for _, id := range order {
		m := byID[id]
		score := m.score
		m.prop.Relevance = &score
		out = append(out, m.prop)
	}

	// Stable sort keeps each source's own order among equal scores, so a
	// single-source merge returns that source's order unchanged.
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Relevance > *out[j].Relevance
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
