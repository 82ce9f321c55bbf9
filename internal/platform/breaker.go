// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/metrics"
	"github.com/visey/recommender/internal/models"
)

// Breaker wraps a Client with a circuit breaker. When the platform fails
// persistently the breaker opens and callers fail fast instead of piling up
// behind timeouts; sync runs then record the failure and the cache keeps
// serving the last good data.
//
// The breaker uses real time for its interval and timeout calculations. Unit
// tests should exercise the wrapped client directly.
type Breaker struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewBreaker wraps client with circuit breaker protection. The circuit opens
// after a 60% failure rate over at least 10 requests, stays open for 2
// minutes, then admits up to 3 trial requests.
func NewBreaker(client *Client) *Breaker {
	const cbName = "platform-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening platform circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("platform circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Breaker{client: client, cb: cb, name: cbName}
}

// execute runs a platform call under the breaker and records the outcome.
// Auth and not-found responses are definitive answers from the platform, not
// signs of degradation, so they do not count as breaker failures.
func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		res, err := fn()
		if err != nil && (IsAuthError(err) || IsNotFound(err)) {
			return breakerPass{res: res, err: err}, nil
		}
		return res, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("platform request rejected by circuit breaker")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	if pass, ok := result.(breakerPass); ok {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return pass.res, pass.err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// breakerPass smuggles terminal application errors through the breaker
// without tripping it.
type breakerPass struct {
	res any
	err error
}

// castResult type-casts the breaker result with error checking.
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// FetchUser retrieves a user profile with circuit breaker protection.
func (b *Breaker) FetchUser(ctx context.Context, userID int) (*models.UserProfile, error) {
	return castResult[*models.UserProfile](b.execute(func() (any, error) {
		return b.client.FetchUser(ctx, userID)
	}))
}

// resourcesPageResult bundles the multi-value page return for the breaker.
type resourcesPageResult struct {
	items []models.Resource
	more  bool
}

// ResourcesPage retrieves a resource page with circuit breaker protection.
func (b *Breaker) ResourcesPage(ctx context.Context, page int, modifiedSince time.Time) ([]models.Resource, bool, error) {
	res, err := castResult[resourcesPageResult](b.execute(func() (any, error) {
		items, more, err := b.client.ResourcesPage(ctx, page, modifiedSince)
		return resourcesPageResult{items: items, more: more}, err
	}))
	return res.items, res.more, err
}

type termsPageResult struct {
	items []models.Term
	more  bool
}

// TermsPage retrieves a term page with circuit breaker protection.
func (b *Breaker) TermsPage(ctx context.Context, taxonomy string, page int) ([]models.Term, bool, error) {
	res, err := castResult[termsPageResult](b.execute(func() (any, error) {
		items, more, err := b.client.TermsPage(ctx, taxonomy, page)
		return termsPageResult{items: items, more: more}, err
	}))
	return res.items, res.more, err
}

// Search runs a content search with circuit breaker protection.
func (b *Breaker) Search(ctx context.Context, query string, limit int) ([]models.Resource, error) {
	return castResult[[]models.Resource](b.execute(func() (any, error) {
		return b.client.Search(ctx, query, limit)
	}))
}

// Health probes the platform. The probe bypasses the breaker so health
// reporting still works while the circuit is open.
func (b *Breaker) Health(ctx context.Context) models.PlatformHealth {
	return b.client.Health(ctx)
}
