// Package client provides the HTTP transport for the NikoHealth external
// API: request signing, error classification, retry with backoff, and an
// optional Redis response cache.
//
// All timeout and retry policy lives here. The stream layer on top issues
// one request at a time and treats any error from this package as fatal for
// the run.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datalift/nikohealth-connector/pkg/auth"
	"github.com/datalift/nikohealth-connector/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "niko_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "niko_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "niko_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassAuth represents authentication failures.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Authenticator signs outgoing requests. Implemented by *auth.Authenticator.
type Authenticator interface {
	Apply(req *http.Request) error
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://acme.nikohealth.com/api/external/
	BaseURL string

	// Domain is the tenant subdomain, used to namespace cache keys.
	Domain string

	// Auth signs every outgoing request. Optional only for unauthenticated
	// endpoints (there are none in production).
	Auth Authenticator

	// Redis enables the response cache when set. A nil client disables
	// caching entirely.
	Redis *redis.Client

	// CacheTTL is the lifetime of cached responses.
	CacheTTL time.Duration

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Retry controls backoff for 5xx and network failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, domain string, authenticator Authenticator) Config {
	return Config{
		BaseURL:  baseURL,
		Domain:   domain,
		Auth:     authenticator,
		CacheTTL: cache.DefaultTTL,
		Timeout:  30 * time.Second,
		Retry:    DefaultRetryConfig(),
	}
}

// Client is the NikoHealth API transport.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// New creates a new transport.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cacheManager,
		config: cfg,
		logger: log.With().Str("component", "transport").Logger(),
	}, nil
}

// NewRequest builds a GET-style request against the configured base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	target := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	return req, nil
}

// Get performs an authenticated GET request against an API path.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.Do(req)
}

// Do executes a request with signing, caching, retry, and error handling.
// 4xx responses are returned to the caller without retry; 5xx and network
// failures are retried per the configured policy before surfacing.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.Key{
		Domain:   c.config.Domain,
		Endpoint: endpoint,
		Query:    req.URL.Query(),
	}

	// Cache lookup applies only to GETs, and only when Redis is configured.
	if c.cache != nil && req.Method == http.MethodGet {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err == nil {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Msg("Serving response from cache")
			requestsTotal.WithLabelValues(endpoint, "cache").Inc()
			return cache.EntryToResponse(entry), nil
		}
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing API request")

	var resp *http.Response

	attempt := func() error {
		// Re-sign each attempt; the token may have expired during backoff.
		if c.config.Auth != nil {
			if err := c.config.Auth.Apply(req); err != nil {
				errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
				return err
			}
		}

		r, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			errClass := c.classifyError(r, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(errClass)).
				Msg("API request error")

			if shouldRetry(errClass) {
				r.Body.Close()
				return &APIError{
					StatusCode: r.StatusCode,
					ErrorClass: errClass,
					Message:    r.Status,
				}
			}

			// 4xx: hand the response back, the caller decides.
			resp = r
			return nil
		}

		resp = r
		return nil
	}

	classify := func(err error) ErrorClass {
		if errors.Is(err, auth.ErrAuthentication) {
			return ErrorClassAuth
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.ErrorClass
		}
		return ErrorClassNetwork
	}

	if err := retryWithBackoff(ctx, c.config.Retry, attempt, classify); err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	// Cache successful GET responses.
	if c.cache != nil && req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and retry decisions.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		if errors.Is(err, auth.ErrAuthentication) {
			return ErrorClassAuth
		}
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrorClassAuth
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
