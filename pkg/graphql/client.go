// Package graphql fetches pages of a subgraph collection over HTTP.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for subgraph requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_requests_total",
		Help: "Total subgraph page requests by collection and status",
	}, []string{"collection", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subgraph_request_duration_seconds",
		Help:    "Subgraph page request duration in seconds by collection",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"collection"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_errors_total",
		Help: "Total subgraph fetch errors by class",
	}, []string{"class"})
)

// maxErrorBody limits how much of a failed response ends up in an error message.
const maxErrorBody = 512

// Client fetches pages of one collection from one subgraph endpoint.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the GraphQL HTTP endpoint (REQUIRED)
	Endpoint string

	// Collection is the top-level query field holding the records, e.g. "domains" (REQUIRED)
	Collection string

	// Query is the GraphQL document; it must accept $first and $skip (REQUIRED)
	Query string

	// User-Agent header
	UserAgent string

	// Timeout bounds a single HTTP exchange; 0 leaves it to the caller's context
	Timeout time.Duration

	// Cache is an optional page cache
	Cache *cache.Manager

	// CacheTTL is how long cached pages stay valid
	CacheTTL time.Duration
}

// DefaultConfig returns a default configuration for one collection.
func DefaultConfig(endpoint, collection, query string) Config {
	return Config{
		Endpoint:   endpoint,
		Collection: collection,
		Query:      query,
		UserAgent:  "subgraph-sync/1.0",
		Timeout:    30 * time.Second,
		CacheTTL:   10 * time.Minute,
	}
}

// New creates a new subgraph client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be http or https (got %q)", cfg.Endpoint)
	}

	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	if cfg.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be > 0 when a cache is configured (got %s)", cfg.CacheTTL)
	}

	logger := log.With().
		Str("component", "graphql-client").
		Str("collection", cfg.Collection).
		Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: logger,
	}, nil
}

type request struct {
	Query     string    `json:"query"`
	Variables variables `json:"variables"`
}

type variables struct {
	First int `json:"first"`
	Skip  int `json:"skip"`
}

type response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []ErrorMessage             `json:"errors"`
}

// FetchPage requests at most pageSize records starting at offset.
// It performs exactly one POST (none on a cache hit) and never retries.
func (c *Client) FetchPage(ctx context.Context, offset, pageSize int) ([]json.RawMessage, error) {
	collection := c.config.Collection

	var key cache.CacheKey
	if c.cache != nil {
		key = cache.PageKey(c.config.Endpoint, collection, c.config.Query, offset, pageSize)
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			requestsTotal.WithLabelValues(collection, "cached").Inc()
			c.logger.Debug().Int("offset", offset).Int("records", len(entry.Records)).Msg("Page served from cache")
			return entry.Records, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Int("offset", offset).Msg("Cache get error")
		}
	}

	records, err := c.do(ctx, offset, pageSize)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cache.NewEntry(records, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Int("offset", offset).Msg("Failed to cache page")
		}
	}

	return records, nil
}

// do performs the HTTP exchange and decodes the collection.
func (c *Client) do(ctx context.Context, offset, pageSize int) ([]json.RawMessage, error) {
	collection := c.config.Collection

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(collection).Observe(time.Since(startTime).Seconds())
	}()

	body, err := json.Marshal(request{
		Query:     c.config.Query,
		Variables: variables{First: pageSize, Skip: offset},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Int("offset", offset).
		Int("page_size", pageSize).
		Msg("Executing subgraph request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(collection, "network_error").Inc()
		return nil, c.fail(&TransportError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}, offset)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(collection, "network_error").Inc()
		return nil, c.fail(&TransportError{
			Class:   ErrorClassNetwork,
			Message: "read response body",
			Err:     err,
		}, offset)
	}

	requestsTotal.WithLabelValues(collection, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		if len(data) > 0 {
			msg = fmt.Sprintf("%s: %s", resp.Status, truncate(data, maxErrorBody))
		}
		return nil, c.fail(&TransportError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassStatus,
			Message:    msg,
		}, offset)
	}

	var decoded response
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, c.fail(&TransportError{
			Class:   ErrorClassDecode,
			Message: "decode response",
			Err:     err,
		}, offset)
	}

	if len(decoded.Errors) > 0 {
		return nil, c.fail(&QueryError{Collection: collection, Errors: decoded.Errors}, offset)
	}

	raw, ok := decoded.Data[collection]
	if !ok || string(raw) == "null" {
		return nil, c.fail(&QueryError{Collection: collection, Err: ErrMissingCollection}, offset)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, c.fail(&TransportError{
			Class:   ErrorClassDecode,
			Message: fmt.Sprintf("decode %s", collection),
			Err:     err,
		}, offset)
	}

	c.logger.Debug().
		Int("offset", offset).
		Int("records", len(records)).
		Dur("duration", time.Since(startTime)).
		Msg("Page fetched")

	return records, nil
}

// fail counts and logs a classified error before handing it back.
func (c *Client) fail(err error, offset int) error {
	class := classify(err)
	errorsTotal.WithLabelValues(string(class)).Inc()

	evt := c.logger.Debug()
	if class != ErrorClassNetwork || !isCancellation(err) {
		evt = c.logger.Warn()
	}
	evt.Err(err).
		Int("offset", offset).
		Str("error_class", string(class)).
		Msg("Subgraph request error")

	return err
}

// classify returns the error class of err.
func classify(err error) ErrorClass {
	var qe *QueryError
	if errors.As(err, &qe) {
		return ErrorClassQuery
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Class
	}
	return ""
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
