package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/cache"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/config"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/health"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/notify"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/textsearch"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/vectorsearch"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// acquireRetryBase is the backoff before the single in-process retry of an
// exhausted pool acquire.
const acquireRetryBase = 50 * time.Millisecond

// Embedder vectorizes query text. The production implementation is the
// failover embedding client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TextSearcher runs remote keyword queries. The production implementation
// is the text search HTTP client.
type TextSearcher interface {
	Search(ctx context.Context, q textsearch.Query) (*textsearch.Response, error)
}

// Orchestrator routes each request through the strategy table, executes
// the chosen plan and assembles the result. It owns no sessions; every
// database touch goes through a scoped pool lease.
type Orchestrator struct {
	cfgs      *config.Store
	pool      *pool.Pool
	agg       *metrics.Aggregator
	evaluator *health.Evaluator
	cache     *cache.QueryCache
	embedder  Embedder
	text      TextSearcher
	vector    *vectorsearch.Executor
	listener  notify.Listener
	log       logging.Logger

	now func() time.Time
}

// NewOrchestrator wires the serving core together.
func NewOrchestrator(
	cfgs *config.Store,
	p *pool.Pool,
	agg *metrics.Aggregator,
	evaluator *health.Evaluator,
	qc *cache.QueryCache,
	embedder Embedder,
	text TextSearcher,
	vector *vectorsearch.Executor,
	listener notify.Listener,
	log logging.Logger,
) *Orchestrator {
	if listener == nil {
		listener = notify.NopListener{}
	}
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Orchestrator{
		cfgs:      cfgs,
		pool:      p,
		agg:       agg,
		evaluator: evaluator,
		cache:     qc,
		embedder:  embedder,
		text:      text,
		vector:    vector,
		listener:  listener,
		log:       log.WithComponent("search"),
		now:       time.Now,
	}
}

// Search runs one property search end to end: normalize, snapshot, select
// a strategy, execute it (with at most one downgrade on an unavailable
// upstream), record metrics and cache the result.
func (o *Orchestrator) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	start := o.now()
	cfg := o.cfgs.Current()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid search request", err)
	}

	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = start.Add(cfg.Search.DefaultDeadline)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	fingerprint := req.Fingerprint()

	// One snapshot at entry; selection happens before any acquire.
	status := o.pool.Status()
	snap := o.agg.Take(metrics.PoolView{
		Total:      status.Total,
		Idle:       status.Idle,
		Waiting:    status.Waiting,
		Active:     status.Leased,
		CurrentMax: status.CurrentMax,
	})
	report := o.evaluator.Evaluate(snap, status, o.pool.LastProbeOK())

	cond := Conditions{
		Snapshot:  snap,
		Healthy:   report.Status == health.StatusHealthy,
		Embedding: req.HasEmbedding(),
		CacheHit:  o.cache.Contains(fingerprint),
		HasQuery:  req.QueryText != "",
	}

	// Vectorize lazily: only when a vector-capable plan is reachable.
	if !cond.Embedding && cond.HasQuery && cond.Healthy && snap.Utilization <= highUtilization {
		if vecs, err := o.embedder.Embed(ctx, []string{req.QueryText}); err == nil && len(vecs) == 1 {
			req.Embedding = vecs[0]
			cond.Embedding = true
		} else if err != nil {
			o.log.DebugContext(ctx, "query embedding unavailable", "error", err.Error())
		}
	}

	strategy := SelectStrategy(cond)
	result, err := o.execute(ctx, strategy, req, fingerprint, deadline, cfg)
	if err != nil && apperrors.Is(err, apperrors.KindUpstreamUnavailable) {
		next := downgrade(strategy, cond)
		o.log.WarnContext(ctx, "strategy downgraded",
			"from", string(strategy), "to", string(next), "error", err.Error())
		result, err = o.execute(ctx, next, req, fingerprint, deadline, cfg)
	}

	end := o.now()
	elapsed := end.Sub(start)
	o.agg.RecordQuery(start, end, err == nil)
	if err != nil {
		o.agg.RecordError(string(apperrors.KindOf(err)))
		return nil, err
	}

	result.Elapsed = elapsed
	result.Metadata.PoolUtilization = snap.Utilization

	switch result.StrategyUsed {
	case types.StrategyHybrid, types.StrategyText, types.StrategyVector:
		o.cache.Put(fingerprint, *result)
	}

	if cfg.Search.SlowRequestThreshold > 0 && elapsed > cfg.Search.SlowRequestThreshold {
		o.listener.OnSlowRequest(logging.TraceIDFrom(ctx), string(result.StrategyUsed), elapsed)
	}

	o.log.InfoContext(ctx, "search completed",
		"strategy", string(result.StrategyUsed),
		"items", len(result.Items),
		"elapsed_ms", elapsed.Milliseconds(),
		"utilization", fmt.Sprintf("%.2f", snap.Utilization))
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, strategy types.Strategy, req *types.SearchRequest, fingerprint string, deadline time.Time, cfg *config.Config) (*types.SearchResult, error) {
	switch strategy {
	case types.StrategyCached:
		if r, ok := o.cache.Get(fingerprint); ok {
			r.StrategyUsed = types.StrategyCached
			r.Metadata.CacheHit = true
			return &r, nil
		}
		// Entry expired between selection and execution.
		return o.execute(ctx, types.StrategySimplified, req, fingerprint, deadline, cfg)
	case types.StrategySimplified:
		return o.runSimplifiedStrategy(ctx, req)
	case types.StrategyHybrid:
		return o.runHybrid(ctx, req, deadline, cfg)
	case types.StrategyText:
		return o.runText(ctx, req)
	case types.StrategyVector:
		return o.runVector(ctx, req)
	default:
		return o.runFallback(fingerprint), nil
	}
}

// withSession runs fn on a leased session, retrying an exhausted acquire
// exactly once. The lease is returned on every exit path; a failed query
// discards the session instead of pooling it.
func (o *Orchestrator) withSession(ctx context.Context, fn func(q vectorsearch.Querier) error) error {
	lease, err := o.pool.AcquireWithRetry(ctx, 2, acquireRetryBase)
	if err != nil {
		return err
	}
	healthy := true
	defer func() {
		if healthy {
			lease.Release()
		} else {
			lease.Discard()
		}
	}()
	err = fn(lease.Session())
	if apperrors.Is(err, apperrors.KindQueryFailed) {
		healthy = false
	}
	return err
}

func (o *Orchestrator) runSimplifiedStrategy(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	var items []types.Property
	err := o.withSession(ctx, func(q vectorsearch.Querier) error {
		var err error
		items, err = runSimplified(ctx, q, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &types.SearchResult{
		Items:        items,
		Total:        len(items),
		StrategyUsed: types.StrategySimplified,
		Metadata:     types.ResultMetadata{Optimizations: simplifiedOptimizations},
	}, nil
}

func (o *Orchestrator) runText(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	resp, err := o.text.Search(ctx, textQueryFrom(req))
	if err != nil {
		return nil, err
	}
	return &types.SearchResult{
		Items:        resp.Hits,
		Total:        resp.EstimatedTotal,
		StrategyUsed: types.StrategyText,
		Metadata:     types.ResultMetadata{TextResults: len(resp.Hits)},
	}, nil
}

func (o *Orchestrator) runVector(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	var hits []types.VectorHit
	err := o.withSession(ctx, func(q vectorsearch.Querier) error {
		var err error
		hits, err = o.vector.Search(ctx, q, req.Embedding, vectorFiltersFrom(req), req.Limit, req.Offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]types.Property, len(hits))
	for i, h := range hits {
		items[i] = h.Property
	}
	return &types.SearchResult{
		Items:        items,
		Total:        len(items),
		StrategyUsed: types.StrategyVector,
		Metadata: types.ResultMetadata{
			VectorResults: len(items),
			IndexesHinted: vectorsearch.IndexHints(),
		},
	}, nil
}

// runHybrid fans text and vector out concurrently under a shared deadline.
// A side that fails or misses the deadline contributes nothing; if both
// fail the caller downgrades to fallback.
func (o *Orchestrator) runHybrid(ctx context.Context, req *types.SearchRequest, deadline time.Time, cfg *config.Config) (*types.SearchResult, error) {
	shared := deadline.Add(-cfg.Search.DeadlineMargin)
	hctx, cancel := context.WithDeadline(ctx, shared)
	defer cancel()

	var (
		textHits []types.Property
		textErr  error
		vecHits  []types.VectorHit
		vecErr   error
	)

	g, gctx := errgroup.WithContext(hctx)
	g.Go(func() error {
		resp, err := o.text.Search(gctx, textQueryFrom(req))
		if err != nil {
			textErr = err
			return nil
		}
		textHits = resp.Hits
		return nil
	})
	g.Go(func() error {
		vecErr = o.withSession(gctx, func(q vectorsearch.Querier) error {
			var err error
			vecHits, err = o.vector.Search(gctx, q, req.Embedding, vectorFiltersFrom(req), req.Limit, req.Offset)
			return err
		})
		return nil
	})
	_ = g.Wait()

	if textErr != nil {
		o.log.DebugContext(ctx, "hybrid text side contributed nothing", "error", textErr.Error())
	}
	if vecErr != nil {
		o.log.DebugContext(ctx, "hybrid vector side contributed nothing", "error", vecErr.Error())
	}
	if textErr != nil && vecErr != nil {
		return nil, apperrors.New(apperrors.KindUpstreamUnavailable, "both hybrid sources failed")
	}

	meta := types.ResultMetadata{
		TextResults:   len(textHits),
		VectorResults: len(vecHits),
	}
	if vecErr == nil && len(vecHits) > 0 {
		meta.IndexesHinted = vectorsearch.IndexHints()
	}
	items := mergeHybrid(textHits, vecHits, req.Limit)
	return &types.SearchResult{
		Items:        items,
		Total:        len(items),
		StrategyUsed: types.StrategyHybrid,
		Metadata:     meta,
	}, nil
}

// runFallback serves whatever the cache still holds, or an empty result.
// It never fails.
func (o *Orchestrator) runFallback(fingerprint string) *types.SearchResult {
	if r, ok := o.cache.Get(fingerprint); ok {
		r.StrategyUsed = types.StrategyFallback
		r.Metadata.CacheHit = true
		return &r
	}
	return &types.SearchResult{
		Items:        []types.Property{},
		StrategyUsed: types.StrategyFallback,
	}
}

func textQueryFrom(req *types.SearchRequest) textsearch.Query {
	q := textsearch.Query{
		QueryText: req.QueryText,
		Limit:     req.Limit,
		Offset:    req.Offset,
		Filters: textsearch.Filters{
			Location:     req.Location,
			PropertyType: req.PropertyType,
			Bedrooms:     req.Bedrooms,
		},
	}
	if req.PriceRange != nil {
		q.Filters.PriceMin = req.PriceRange.Min
		q.Filters.PriceMax = req.PriceRange.Max
	}
	if req.SortBy != types.SortRelevance {
		q.Sort = []string{string(req.SortBy) + ":" + string(req.SortOrder)}
	}
	return q
}

func vectorFiltersFrom(req *types.SearchRequest) vectorsearch.Filters {
	f := vectorsearch.Filters{
		Location:     req.Location,
		PropertyType: req.PropertyType,
		Bedrooms:     req.Bedrooms,
		Bathrooms:    req.Bathrooms,
	}
	if req.PriceRange != nil {
		f.PriceMin = req.PriceRange.Min
		f.PriceMax = req.PriceRange.Max
	}
	return f
}
