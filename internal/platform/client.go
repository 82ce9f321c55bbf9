// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package platform implements the content platform API client.
//
// The client speaks the platform's REST surface (wp-json/wp/v2) and layers
// the resilience mechanisms every caller relies on:
//
//   - Token-bucket rate limiting: callers that exceed the configured
//     requests-per-minute budget are suspended until capacity frees up,
//     never dropped.
//   - Retries with exponential backoff and jitter for transient failures
//     (transport errors, 5xx, 429). Auth failures and 404s are terminal.
//   - Circuit breaker protection via the Breaker wrapper (breaker.go).
//
// Thread safety: all methods are safe for concurrent use.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/metrics"
	"github.com/visey/recommender/internal/models"
)

// maxErrorBodySize bounds how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// API is the platform surface consumed by the scheduler and the recommender
// service. Implemented by Client and by the circuit-breaker wrapper.
type API interface {
	// FetchUser retrieves a single user profile.
	FetchUser(ctx context.Context, userID int) (*models.UserProfile, error)

	// ResourcesPage retrieves one page of resources. A zero modifiedSince
	// fetches everything; otherwise only resources modified after the given
	// time are returned. more reports whether further pages exist.
	ResourcesPage(ctx context.Context, page int, modifiedSince time.Time) (items []models.Resource, more bool, err error)

	// TermsPage retrieves one page of taxonomy terms. taxonomy is
	// "category" or "tag".
	TermsPage(ctx context.Context, taxonomy string, page int) (items []models.Term, more bool, err error)

	// Search runs a server-side content search.
	Search(ctx context.Context, query string, limit int) ([]models.Resource, error)

	// Health probes reachability and, when credentials are configured,
	// verifies they are accepted.
	Health(ctx context.Context) models.PlatformHealth
}

// Client is the concrete platform API client.
type Client struct {
	baseURL string
	auth    authenticator
	http    *http.Client
	limiter *rate.Limiter

	batchSize     int
	retryAttempts int
	retryDelay    time.Duration
}

// NewClient builds a platform client from configuration. Config validation
// has already rejected invalid auth combinations; an error here means the
// auth type itself is unknown.
func NewClient(cfg *config.PlatformConfig) (*Client, error) {
	auth, err := newAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	// One token per interval; the burst equals the per-minute budget so a
	// cold client can issue a full batch before throttling kicks in.
	interval := time.Minute / time.Duration(cfg.RateLimit)
	limiter := rate.NewLimiter(rate.Every(interval), cfg.RateLimit)

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		auth:          auth,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       limiter,
		batchSize:     cfg.BatchSize,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}, nil
}

// get performs a GET against an API path, handling rate limiting, retries
// and error classification, then decodes the JSON body into result.
// Returns the response headers for pagination inspection.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, result any) (http.Header, error) {
	reqURL := c.baseURL + "/wp-json/wp/v2/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	// Suspend until the token bucket has capacity. The wait is bounded by
	// the caller's context.
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	metrics.PlatformRateLimitWait.Observe(time.Since(waitStart).Seconds())

	timer := time.Now()
	defer func() {
		metrics.PlatformRequestDuration.WithLabelValues(endpoint).Observe(time.Since(timer).Seconds())
	}()

	var lastErr error
retry:
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 {
			metrics.PlatformRetries.Inc()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		c.auth.apply(req)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = &NetworkError{Endpoint: endpoint, Err: err}
			metrics.PlatformRequestErrors.WithLabelValues(endpoint, "network").Inc()
			if !c.backoff(ctx, attempt, 0) {
				break retry
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			header := resp.Header
			err := json.NewDecoder(resp.Body).Decode(result)
			closeErr := resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
			}
			if closeErr != nil {
				return nil, closeErr
			}
			return header, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			msg := string(readBodyForError(resp.Body))
			_ = resp.Body.Close()
			metrics.PlatformRequestErrors.WithLabelValues(endpoint, "auth").Inc()
			return nil, &AuthError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: msg}

		case resp.StatusCode == http.StatusNotFound:
			_ = resp.Body.Close()
			metrics.PlatformRequestErrors.WithLabelValues(endpoint, "not_found").Inc()
			return nil, &NotFoundError{Kind: endpoint}

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			_ = resp.Body.Close()
			lastErr = ErrRateLimited
			metrics.PlatformRequestErrors.WithLabelValues(endpoint, "rate_limited").Inc()
			if !c.backoff(ctx, attempt, retryAfter) {
				break retry
			}
			continue

		default:
			body := readBodyForError(resp.Body)
			_ = resp.Body.Close()
			lastErr = &NetworkError{
				Endpoint: endpoint,
				Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
			}
			metrics.PlatformRequestErrors.WithLabelValues(endpoint, "network").Inc()
			if resp.StatusCode < 500 {
				// 4xx other than auth/404/429 will not improve on retry.
				return nil, lastErr
			}
			if !c.backoff(ctx, attempt, 0) {
				break retry
			}
			continue
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, lastErr
}

// backoff sleeps for the exponential backoff delay of the given attempt with
// jitter in [0.5, 1.0) of the nominal delay. A non-zero override (from
// Retry-After) replaces the computed delay. Returns false when there are no
// attempts left or the context was canceled.
func (c *Client) backoff(ctx context.Context, attempt int, override time.Duration) bool {
	if attempt >= c.retryAttempts {
		return false
	}
	delay := c.retryDelay * time.Duration(1<<uint(attempt))
	delay = time.Duration(float64(delay) * (0.5 + 0.5*rand.Float64()))
	if override > 0 {
		delay = override
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// readBodyForError reads at most maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

// FetchUser retrieves a single user profile.
func (c *Client) FetchUser(ctx context.Context, userID int) (*models.UserProfile, error) {
	var wire wireUser
	if _, err := c.get(ctx, fmt.Sprintf("users/%d", userID), nil, &wire); err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			return nil, &NotFoundError{Kind: "user", ID: userID}
		}
		return nil, err
	}
	profile := wire.toModel(time.Now().UTC())
	return &profile, nil
}

// ResourcesPage retrieves one page of published resources, newest first, with
// embedded term and author data resolved.
func (c *Client) ResourcesPage(ctx context.Context, page int, modifiedSince time.Time) ([]models.Resource, bool, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(c.batchSize))
	params.Set("status", "publish")
	params.Set("_embed", "wp:term,author")
	params.Set("orderby", "modified")
	params.Set("order", "desc")
	if !modifiedSince.IsZero() {
		params.Set("modified_since", modifiedSince.UTC().Format(time.RFC3339))
	}

	var wires []wirePost
	header, err := c.get(ctx, "posts", params, &wires)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	items := make([]models.Resource, 0, len(wires))
	for i := range wires {
		items = append(items, wires[i].toModel(now))
	}
	return items, morePages(header, page, len(wires), c.batchSize), nil
}

// TermsPage retrieves one page of taxonomy terms. taxonomy is "category" or
// "tag".
func (c *Client) TermsPage(ctx context.Context, taxonomy string, page int) ([]models.Term, bool, error) {
	var endpoint string
	switch taxonomy {
	case "category":
		endpoint = "categories"
	case "tag":
		endpoint = "tags"
	default:
		return nil, false, fmt.Errorf("unknown taxonomy %q", taxonomy)
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(c.batchSize))

	var wires []wireTerm
	header, err := c.get(ctx, endpoint, params, &wires)
	if err != nil {
		return nil, false, err
	}

	items := make([]models.Term, 0, len(wires))
	for i := range wires {
		items = append(items, wires[i].toModel(taxonomy))
	}
	return items, morePages(header, page, len(wires), c.batchSize), nil
}

// Search runs a server-side content search limited to post-type results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Resource, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("type", "post")

	var wires []wireSearchResult
	if _, err := c.get(ctx, "search", params, &wires); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items := make([]models.Resource, 0, len(wires))
	for i := range wires {
		items = append(items, wires[i].toModel(now))
	}
	return items, nil
}

// Health probes the platform. Reachability is checked against the taxonomy
// endpoint (cheap, always present); credentials are verified against
// users/me when auth is configured.
func (c *Client) Health(ctx context.Context) models.PlatformHealth {
	health := models.PlatformHealth{Status: "healthy", AuthStatus: "not_configured"}

	params := url.Values{}
	params.Set("per_page", "1")
	var probe []wireTerm
	if _, err := c.get(ctx, "categories", params, &probe); err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		logging.Warn().Err(err).Msg("platform health probe failed")
		return health
	}

	if !c.auth.configured() {
		return health
	}

	var me wireUser
	if _, err := c.get(ctx, "users/me", nil, &me); err != nil {
		if IsAuthError(err) {
			health.AuthStatus = "authentication_failed"
			health.Error = err.Error()
			return health
		}
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}
	health.AuthStatus = "authenticated"
	return health
}

// morePages decides whether pagination should continue, preferring the
// X-WP-TotalPages header and falling back to a full-page heuristic.
func morePages(header http.Header, page, got, batchSize int) bool {
	if tp := header.Get("X-WP-TotalPages"); tp != "" {
		if total, err := strconv.Atoi(tp); err == nil {
			return page < total
		}
	}
	return got == batchSize && got > 0
}

// AllResources iterates every resource matching modifiedSince, fetching
// pages lazily from the given API. Iteration stops on the first page error,
// which is yielded with a zero resource.
func AllResources(ctx context.Context, api API, modifiedSince time.Time) iter.Seq2[models.Resource, error] {
	return func(yield func(models.Resource, error) bool) {
		for page := 1; ; page++ {
			items, more, err := api.ResourcesPage(ctx, page, modifiedSince)
			if err != nil {
				yield(models.Resource{}, err)
				return
			}
			for i := range items {
				if !yield(items[i], nil) {
					return
				}
			}
			if !more {
				return
			}
		}
	}
}

// AllTerms iterates every term of the given taxonomy, fetching pages lazily.
func AllTerms(ctx context.Context, api API, taxonomy string) iter.Seq2[models.Term, error] {
	return func(yield func(models.Term, error) bool) {
		for page := 1; ; page++ {
			items, more, err := api.TermsPage(ctx, taxonomy, page)
			if err != nil {
				yield(models.Term{}, err)
				return
			}
			for i := range items {
				if !yield(items[i], nil) {
					return
				}
			}
			if !more {
				return
			}
		}
	}
}
