// Package embeddings provides the failover-capable client for the remote
// vectorization service.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/circuitbreaker"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/config"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
)

// batchChunkSize is how many texts go into one upstream call in batch mode.
const batchChunkSize = 50

// embedRequest is the wire request to the embedding service.
type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// embedResponse is the wire response.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Client calls an ordered list of embedding endpoints with per-endpoint
// retry, round-robin failover with a persistent index, a fingerprint cache
// and one circuit breaker per endpoint.
type Client struct {
	endpoints []string
	model     string
	retries   int
	http      *http.Client
	cache     *embeddingCache
	breakers  []*circuitbreaker.CircuitBreaker
	log       logging.Logger
	batchSize int

	mu      sync.Mutex
	current int // persistent round-robin endpoint index
}

// NewClient builds a client from configuration.
func NewClient(cfg config.EmbeddingConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = batchChunkSize
	}
	breakers := make([]*circuitbreaker.CircuitBreaker, len(cfg.Endpoints))
	for i := range breakers {
		breakers[i] = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	return &Client{
		endpoints: cfg.Endpoints,
		model:     cfg.Model,
		retries:   retries,
		http:      &http.Client{Timeout: timeout},
		cache:     newEmbeddingCache(cfg.CacheTTL),
		breakers:  breakers,
		log:       log.WithComponent("embeddings"),
		batchSize: batchSize,
	}
}

// Embed vectorizes texts, consulting the cache first and failing over
// across endpoints. After every endpoint is exhausted the caller gets
// UpstreamUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "no texts to embed")
	}
	key := fingerprint(texts)
	if vectors, ok := c.cache.get(key); ok {
		return vectors, nil
	}

	vectors, err := c.callWithFailover(ctx, texts)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, vectors)
	return vectors, nil
}

// EmbedBatch processes texts in chunks. A chunk failure stops the batch
// but the vectors from completed chunks are returned alongside the error.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.Embed(ctx, texts[start:end])
		if err != nil {
			return out, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Healthy probes the current endpoint with a trivial embed.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Embed(ctx, []string{"health check"})
	return err == nil
}

// callWithFailover walks the endpoint ring starting at the persistent
// index. Each endpoint gets up to c.retries attempts with linear backoff
// (1s, 2s, ...) before the ring advances.
func (c *Client) callWithFailover(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		idx := (start + i) % len(c.endpoints)
		vectors, err := c.callEndpoint(ctx, idx, texts)
		if err == nil {
			c.mu.Lock()
			c.current = idx
			c.mu.Unlock()
			return vectors, nil
		}
		lastErr = err
		if apperrors.KindOf(err) == apperrors.KindCancelled || apperrors.KindOf(err) == apperrors.KindTimeout {
			// The caller's deadline is gone; failing over won't help.
			return nil, err
		}
		c.log.Warn("embedding endpoint failed, advancing", "endpoint", c.endpoints[idx], "error", err)
	}

	c.mu.Lock()
	c.current = (start + 1) % len(c.endpoints)
	c.mu.Unlock()
	return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "embedding service unavailable", lastErr)
}

// callEndpoint retries one endpoint with backoff 1s·k between attempts.
func (c *Client) callEndpoint(ctx context.Context, idx int, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, apperrors.FromContext(ctx)
			case <-time.After(backoff):
			}
		}
		var result [][]float32
		err := c.breakers[idx].Execute(ctx, func(ctx context.Context) error {
			vectors, err := c.post(ctx, c.endpoints[idx], texts)
			if err != nil {
				return err
			}
			result = vectors
			return nil
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, apperrors.FromContext(ctx)
		}
	}
	return nil, lastErr
}

// post performs one HTTP round-trip.
func (c *Client) post(ctx context.Context, endpoint string, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "encode embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperrors.Newf(apperrors.KindUpstreamUnavailable, "embedding service returned %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "decode embed response", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, apperrors.Newf(apperrors.KindUpstreamUnavailable,
			"embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(decoded.Embeddings))
	}
	return decoded.Embeddings, nil
}
