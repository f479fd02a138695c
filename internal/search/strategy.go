// Package search routes property queries through one of several execution
// strategies and merges their results. Strategy selection is a pure
// function of a metrics snapshot taken at request entry, so two requests
// observing the same snapshot pick the same plan.
package search

import (
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

const (
	// highUtilization is the pool pressure above which the orchestrator
	// stops fanning out and serves from cache or a simplified query.
	highUtilization = 0.8

	// hybridLatencyCeiling gates the concurrent text+vector plan.
	hybridLatencyCeiling = 100 * time.Millisecond

	// textLatencyCeiling gates the remote keyword plan.
	textLatencyCeiling = 500 * time.Millisecond
)

// Conditions is everything strategy selection may look at. It is captured
// once per request, before any session is acquired.
type Conditions struct {
	Snapshot  metrics.Snapshot
	Healthy   bool
	Embedding bool
	CacheHit  bool
	HasQuery  bool
}

// SelectStrategy maps request conditions to an execution plan. The mapping
// is total and deterministic.
func SelectStrategy(c Conditions) types.Strategy {
	switch {
	case c.Snapshot.Utilization > highUtilization && c.CacheHit:
		return types.StrategyCached
	case c.Snapshot.Utilization > highUtilization:
		return types.StrategySimplified
	case c.Healthy && c.Snapshot.AvgQueryTime < hybridLatencyCeiling && c.Embedding && c.HasQuery:
		return types.StrategyHybrid
	case c.Healthy && c.Snapshot.AvgQueryTime < textLatencyCeiling && c.HasQuery:
		return types.StrategyText
	case c.Healthy && c.Embedding:
		return types.StrategyVector
	default:
		return types.StrategyFallback
	}
}

// downgrade names the plan tried after strategy failed with a recoverable
// error. The orchestrator downgrades at most once per request.
func downgrade(s types.Strategy, c Conditions) types.Strategy {
	switch s {
	case types.StrategyHybrid:
		// Hybrid already tolerates one failed side; reaching here means
		// both sides failed.
		return types.StrategyFallback
	case types.StrategyText:
		if c.Embedding {
			return types.StrategyVector
		}
		return types.StrategyFallback
	case types.StrategyVector:
		if c.HasQuery {
			return types.StrategyText
		}
		return types.StrategyFallback
	case types.StrategyCached:
		return types.StrategySimplified
	default:
		return types.StrategyFallback
	}
}
