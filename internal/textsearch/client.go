// Package textsearch provides the remote keyword-search client and the
// filter translation into the engine's expression grammar.
package textsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/config"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// Query is one keyword search against the remote engine.
type Query struct {
	QueryText string
	Filters   Filters
	Limit     int
	Offset    int
	Sort      []string
}

// Filters are the structured constraints translated into the remote
// expression grammar.
type Filters struct {
	Location     string
	PriceMin     float64
	PriceMax     float64
	PropertyType string
	Bedrooms     *int
}

// Response carries the engine's hits and timing.
type Response struct {
	Hits           []types.Property
	EstimatedTotal int
	ProcessingTime time.Duration
}

// wire types for the engine's JSON API.
type searchRequest struct {
	Query  string   `json:"q"`
	Filter []string `json:"filter,omitempty"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	Sort   []string `json:"sort,omitempty"`
}

type searchResponse struct {
	Hits               []types.Property `json:"hits"`
	EstimatedTotalHits int              `json:"estimatedTotalHits"`
	ProcessingTimeMs   int64            `json:"processingTimeMs"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Client talks to the text search engine. Failures are returned as
// UpstreamUnavailable; the orchestrator treats them as empty hits.
type Client struct {
	endpoint string
	index    string
	apiKey   string
	http     *http.Client
	log      logging.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.TextSearchConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		index:    cfg.IndexName,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		log:      log.WithComponent("textsearch"),
	}
}

// Search runs one keyword query.
func (c *Client) Search(ctx context.Context, q Query) (*Response, error) {
	wire := searchRequest{
		Query:  q.QueryText,
		Filter: TranslateFilters(q.Filters),
		Limit:  q.Limit,
		Offset: q.Offset,
		Sort:   q.Sort,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "encode search request", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/search", c.endpoint, c.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "build search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := apperrors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "text search request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperrors.Newf(apperrors.KindUpstreamUnavailable, "text search returned %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "decode search response", err)
	}
	return &Response{
		Hits:           decoded.Hits,
		EstimatedTotal: decoded.EstimatedTotalHits,
		ProcessingTime: time.Duration(decoded.ProcessingTimeMs) * time.Millisecond,
	}, nil
}

// Health probes the engine's /health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var decoded healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false
	}
	return decoded.Status == "available" || decoded.Status == "ok"
}

// TranslateFilters renders the structured filters into the engine's
// expression grammar: location equality, price range, type equality and
// bedrooms equality.
func TranslateFilters(f Filters) []string {
	var out []string
	if f.Location != "" {
		out = append(out, fmt.Sprintf("location = %q", f.Location))
	}
	if f.PriceMin > 0 {
		out = append(out, fmt.Sprintf("price >= %.2f", f.PriceMin))
	}
	if f.PriceMax > 0 {
		out = append(out, fmt.Sprintf("price <= %.2f", f.PriceMax))
	}
	if f.PropertyType != "" {
		out = append(out, fmt.Sprintf("property_type = %q", f.PropertyType))
	}
	if f.Bedrooms != nil {
		out = append(out, fmt.Sprintf("bedrooms = %d", *f.Bedrooms))
	}
	return out
}
