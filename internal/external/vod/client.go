// Package vod is the client for the IPTV provider VOD API. A Client owns the
// authenticated session for one harvest run and is passed explicitly to
// every component that talks to the upstream.
package vod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/glefebvre/vodharvest/internal/cache"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/metrics"
	"github.com/glefebvre/vodharvest/internal/retry"
)

const defaultTimeout = 20 * time.Second

// Client represents a VOD API client bound to one provider module
type Client struct {
	baseURL     string
	module      string
	httpClient  *http.Client
	retryConfig retry.Config
	cache       *cache.Store
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

// Config holds VOD client configuration
type Config struct {
	BaseURL string
	Module  string
	Timeout time.Duration

	// RetryConfig defaults to a single attempt: upstream failures are fatal
	RetryConfig retry.Config

	// Cache is optional; nil disables request caching
	Cache   *cache.Store
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Request describes one logical upstream call
type Request struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	Body    string

	// Endpoint labels the request in metrics and logs
	Endpoint string
	// Cacheable routes the request through the fingerprint cache when one is configured
	Cacheable bool
}

// New creates a new VOD client with a fresh cookie session
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.RetryConfig.MaxAttempts <= 0 {
		cfg.RetryConfig = retry.FromAttempts(1)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.AppLogger()
	}

	if cfg.RetryConfig.OnRetry == nil {
		log := cfg.Logger
		cfg.RetryConfig.OnRetry = func(attempt int, err error, wait time.Duration) {
			log.WithFields(map[string]interface{}{
				"attempt": attempt,
				"wait_ms": wait.Milliseconds(),
				"error":   err.Error(),
			}).Warn("retrying upstream request")
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		module:  cfg.Module,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		retryConfig: cfg.RetryConfig,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}, nil
}

// Module returns the provider module identifier
func (c *Client) Module() string {
	return c.module
}

// url joins the base URL and a module-relative path
func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// FetchJSON performs req and returns the decoded JSON body.
// Cacheable requests are answered from the cache when possible; a hit is
// returned as stored, never revalidated against the network. On a miss the
// body is stored only when it is a JSON object, and returned either way.
func (c *Client) FetchJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	if !req.Cacheable || c.cache == nil {
		return c.do(ctx, req)
	}

	fp := cache.Fingerprint(req.key())
	if hit, ok := c.cache.Get(fp); ok {
		c.metrics.ObserveCache(true)
		c.logger.WithFields(map[string]interface{}{
			"endpoint": req.Endpoint,
			"url":      req.URL,
		}).Debug("cache hit")
		return hit, nil
	}
	c.metrics.ObserveCache(false)

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if cache.IsObject(body) {
		if err := c.cache.Put(fp, body); err != nil {
			c.logger.WithFields(map[string]interface{}{
				"endpoint": req.Endpoint,
				"error":    err.Error(),
			}).Warn("failed to write cache entry")
		}
	}
	return body, nil
}

func (r Request) key() cache.Key {
	return cache.Key{
		Method:  r.Method,
		URL:     r.URL,
		Params:  r.Params,
		Headers: r.Headers,
		Body:    r.Body,
	}
}

func (c *Client) do(ctx context.Context, req Request) (json.RawMessage, error) {
	return retry.DoWithResult(ctx, c.retryConfig, func() (json.RawMessage, error) {
		return c.roundTrip(ctx, req)
	}, errors.IsRetryable)
}

func (c *Client) roundTrip(ctx context.Context, req Request) (json.RawMessage, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, errors.TransportFailure(req.URL, 0, err)
	}

	c.metrics.ObserveRequest(req.Endpoint)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.TransportFailure(req.URL, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransportFailure(req.URL, resp.StatusCode, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"endpoint":    req.Endpoint,
		"method":      httpReq.Method,
		"url":         httpReq.URL.String(),
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("upstream request")

	// unfollowed redirects and other sub-400 statuses are judged by their body
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.TransportFailure(req.URL, resp.StatusCode, nil).WithPayload(jsonOrNil(body))
	}

	if !json.Valid(body) {
		return nil, errors.InvalidResponse(req.URL, resp.StatusCode)
	}

	return json.RawMessage(body), nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Params) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var body io.Reader
	if req.Body != "" {
		body = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// jsonOrNil keeps error bodies only when they can be pretty-printed later
func jsonOrNil(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	return nil
}
