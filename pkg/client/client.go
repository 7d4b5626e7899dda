// Package client provides the low-level HTTP client shared by the REST and
// GraphQL transports: retries with backoff, error classification, an
// optional Redis response cache and a shared rate-limit gate.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/cache"
	"github.com/Sternrassler/rickmorty-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	// DefaultRESTBaseURL is the public REST endpoint.
	DefaultRESTBaseURL = "https://rickandmortyapi.com/api"

	// DefaultGraphQLURL is the public GraphQL endpoint.
	DefaultGraphQLURL = "https://rickandmortyapi.com/graphql"

	// DefaultUserAgent identifies the client upstream.
	DefaultUserAgent = "rickmorty-client/1.0"

	// DefaultTimeout applies to every single request.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds the response body kept on an APIError.
	maxErrorBody = 512
)

// Transport labels used for metrics and cache keys.
const (
	TransportREST    = "rest"
	TransportGraphQL = "graphql"
)

// Config holds the client configuration.
type Config struct {
	RESTBaseURL string
	GraphQLURL  string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	Retry RetryConfig

	// MaxConcurrency is the number of pages fetched in parallel by the
	// paginator. 1 keeps pagination strictly sequential.
	MaxConcurrency int

	// Redis enables the response cache and the shared rate-limit gate.
	// Optional; the client owns none of its lifecycle.
	Redis *redis.Client

	// CacheTTL is the freshness lifetime for responses without cache headers.
	CacheTTL time.Duration
}

// DefaultConfig returns the configuration for the public API.
func DefaultConfig() Config {
	return Config{
		RESTBaseURL:    DefaultRESTBaseURL,
		GraphQLURL:     DefaultGraphQLURL,
		UserAgent:      DefaultUserAgent,
		Timeout:        DefaultTimeout,
		Retry:          DefaultRetryConfig(),
		MaxConcurrency: 1,
		CacheTTL:       cache.DefaultTTL,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RESTBaseURL == "" {
		return fmt.Errorf("rest base url is required")
	}
	if c.GraphQLURL == "" {
		return fmt.Errorf("graphql url is required")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", c.Timeout)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be >= 1 (got %d)", c.MaxConcurrency)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// Client performs upstream requests. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	retrier     *Retrier
	cache       *cache.Manager
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger

	mu     sync.RWMutex
	closed bool

	calls    atomic.Int64
	attempts atomic.Int64
}

// New creates a client. No network call is made.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.With().Str("component", "http-client").Logger()

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    NewRetrier(cfg.Retry, logger),
		config:     cfg,
		logger:     logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Get fetches a JSON object from a REST URL.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, TransportREST)
}

// PostJSON posts a JSON payload (a GraphQL query) and returns the JSON
// object response.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, rawURL, payload, TransportGraphQL)
}

// Calls returns the number of logical requests that reached the network,
// failed ones included. Fresh cache hits are not counted and retries of one
// request count once; see Attempts for round trips.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// Attempts returns the number of HTTP round trips, retries included.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// Close releases idle connections. Further requests fail with ErrClosed.
// Calling Close more than once is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.httpClient.CloseIdleConnections()
	c.logger.Debug().Msg("Client closed")
	return nil
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte, transport string) ([]byte, error) {
	if c.Closed() {
		return nil, ErrClosed
	}

	var (
		cacheKey cache.CacheKey
		stale    *cache.CacheEntry
	)
	if c.cache != nil {
		key, err := cache.KeyFromURL(transport, rawURL, payload)
		if err != nil {
			return nil, &APIError{ErrorClass: ErrorClassClient, Message: "invalid request url", Err: err}
		}
		cacheKey = key

		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil && !entry.IsExpired():
			c.logger.Debug().Str("key", cacheKey.String()).Dur("ttl", entry.TTL()).Msg("Serving response from cache")
			return entry.Data, nil
		case err == nil:
			stale = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", cacheKey.String()).Msg("Cache get error")
		}
	}

	c.calls.Add(1)

	var body []byte
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		body, attemptErr = c.attempt(ctx, method, rawURL, payload, transport, cacheKey, stale)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// attempt performs one HTTP round trip and classifies its outcome.
func (c *Client) attempt(ctx context.Context, method, rawURL string, payload []byte, transport string, cacheKey cache.CacheKey, stale *cache.CacheEntry) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, &APIError{ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if stale != nil {
		cache.AddConditionalHeaders(req, stale)
	}

	c.attempts.Add(1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		apiRequestsTotal.WithLabelValues(transport, "network_error").Inc()
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read response body", Err: err}
	}

	apiRequestsTotal.WithLabelValues(transport, strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		c.logger.Debug().Str("url", rawURL).Msg("304 Not Modified - using cache")
		expires := cache.ExpiresFromHeaders(resp.Header, c.config.CacheTTL)
		if err := c.cache.Refresh(ctx, cacheKey, stale, expires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return stale.Data, nil
	}

	if apiErr := classifyResponse(resp, body); apiErr != nil {
		apiErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		if apiErr.ErrorClass == ErrorClassRateLimit && c.rateLimiter != nil {
			if err := c.rateLimiter.RecordCooldown(ctx, apiErr.RetryAfter); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit cooldown")
			}
		}
		c.logger.Debug().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Msg("Upstream request error")
		return nil, apiErr
	}

	if c.cache != nil && cacheable(transport, body) {
		entry := cache.ResponseToEntry(resp, body, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return body, nil
}

// cacheable reports whether a successful body may be stored. GraphQL
// answers query failures with 200 and an errors array; those are never cached.
func cacheable(transport string, body []byte) bool {
	if transport != TransportGraphQL {
		return true
	}
	errs := gjson.GetBytes(body, "errors")
	return !errs.IsArray() || len(errs.Array()) == 0
}

// classifyResponse maps a completed response to an APIError, or nil when
// the response is a 2xx carrying a JSON object.
func classifyResponse(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		Body:       truncate(body, maxErrorBody),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
			apiErr.ErrorClass = ErrorClassMalformed
			apiErr.Message = "response is not a JSON object"
			return apiErr
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		apiErr.ErrorClass = ErrorClassNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.ErrorClass = ErrorClassRateLimit
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= 500:
		apiErr.ErrorClass = ErrorClassServer
	default:
		apiErr.ErrorClass = ErrorClassClient
	}
	return apiErr
}

// parseRetryAfter accepts delta-seconds or an HTTP date. It returns 0 when
// the header is absent or unparsable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
