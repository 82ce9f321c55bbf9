// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/visey/recommender/internal/cache"
	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/feedback"
	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/metrics"
	"github.com/visey/recommender/internal/models"
	"github.com/visey/recommender/internal/platform"
)

// ErrNoData indicates the cache holds no resources to recommend from,
// typically because no sync has completed yet.
var ErrNoData = errors.New("no synchronized resources available")

// Service orchestrates a recommendation request: profile lookup, candidate
// assembly from the cache, feedback loading and scoring.
//
// Data-source policy: profiles are cache-first with a live platform
// fallback; candidate resources are cache-only. A recommendation request
// never triggers a resource fetch; that is the sync scheduler's job.
type Service struct {
	api    platform.API
	cache  *cache.Cache
	store  *feedback.Store
	engine *Engine
	cfg    config.ScoringConfig
}

// NewService wires the orchestrator.
func NewService(api platform.API, c *cache.Cache, store *feedback.Store, engine *Engine, cfg config.ScoringConfig) *Service {
	return &Service{api: api, cache: c, store: store, engine: engine, cfg: cfg}
}

// Recommend returns the top n recommendations for a user. n <= 0 uses the
// configured default. Returns ErrNoData when the cache holds no resources.
func (s *Service) Recommend(ctx context.Context, userID, n int) ([]models.Recommendation, error) {
	if n <= 0 {
		n = s.cfg.TopN
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	recs, err := s.recommend(ctx, userID, n)
	metrics.RecommendDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, ErrNoData):
		metrics.RecommendRequests.WithLabelValues("no_data").Inc()
	case err != nil:
		metrics.RecommendRequests.WithLabelValues("error").Inc()
	default:
		metrics.RecommendRequests.WithLabelValues("ok").Inc()
	}
	return recs, err
}

func (s *Service) recommend(ctx context.Context, userID, n int) ([]models.Recommendation, error) {
	profile := s.loadProfile(ctx, userID)

	candidates, err := s.loadCandidates(ctx)
	if err != nil {
		return nil, err
	}

	interactions, err := s.store.InteractionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	usersByResource, err := s.store.UsersByResource(ctx)
	if err != nil {
		return nil, err
	}
	popularity, err := s.store.PopularityStats(ctx)
	if err != nil {
		return nil, err
	}

	// Already-interacted resources stay in the candidate set: the engine
	// zeroes their collaborative signal, and their titles and excerpts feed
	// the content vector as reading history.
	seen := make(map[int]bool, len(interactions))
	for _, in := range interactions {
		seen[in.ResourceID] = true
	}
	var history []models.Resource
	for _, r := range candidates {
		if seen[r.ID] {
			history = append(history, r)
		}
	}

	in := ScoreInput{
		Profile:         profile,
		Candidates:      candidates,
		TermNames:       s.loadTermNames(ctx),
		Interactions:    interactions,
		History:         history,
		UsersByResource: usersByResource,
		Popularity:      popularity,
	}
	return s.engine.Score(ctx, in, n), nil
}

// loadProfile is cache-first with a live fallback. Profile trouble degrades
// to an empty profile rather than failing the request: scoring then leans on
// the collaborative and popularity signals.
func (s *Service) loadProfile(ctx context.Context, userID int) *models.UserProfile {
	if p, ok, err := s.cache.GetProfile(ctx, userID); err == nil && ok {
		return p
	} else if err != nil {
		logging.Warn().Err(err).Int("user_id", userID).Msg("profile cache read failed")
	}

	p, err := s.api.FetchUser(ctx, userID)
	if err != nil {
		if !platform.IsNotFound(err) {
			logging.Warn().Err(err).Int("user_id", userID).Msg("live profile fetch failed, using empty profile")
		}
		return &models.UserProfile{ID: userID}
	}
	if err := s.cache.SetProfile(ctx, p); err != nil {
		logging.Warn().Err(err).Int("user_id", userID).Msg("profile cache write failed")
	}
	return p
}

// loadCandidates assembles the candidate set from the cached resource
// index, in ascending ID order. Individual index entries that have expired
// are skipped.
func (s *Service) loadCandidates(ctx context.Context) ([]models.Resource, error) {
	ids, ok, err := s.cache.GetResourceIndex(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || len(ids) == 0 {
		return nil, ErrNoData
	}

	candidates := make([]models.Resource, 0, len(ids))
	for _, id := range ids {
		r, ok, err := s.cache.GetResource(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			candidates = append(candidates, *r)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoData
	}
	return candidates, nil
}

// loadTermNames builds the term ID to name mapping from both cached
// taxonomies. Missing taxonomies just leave IDs unresolved.
func (s *Service) loadTermNames(ctx context.Context) map[int]string {
	names := make(map[int]string)
	for _, tax := range []string{"category", "tag"} {
		terms, ok, err := s.cache.GetTerms(ctx, tax)
		if err != nil || !ok {
			continue
		}
		for _, t := range terms {
			names[t.ID] = t.Name
		}
	}
	return names
}

// SubmitFeedback validates and stores an interaction.
func (s *Service) SubmitFeedback(ctx context.Context, in models.Interaction) error {
	return s.store.Upsert(ctx, in)
}

// Search serves a content search, cache-first. Results are cached under the
// search TTL so repeated queries within the window never hit the platform.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Resource, error) {
	if results, ok, err := s.cache.GetSearch(ctx, query); err == nil && ok {
		return results, nil
	} else if err != nil {
		logging.Warn().Err(err).Msg("search cache read failed")
	}

	results, err := s.api.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetSearch(ctx, query, results); err != nil {
		logging.Warn().Err(err).Msg("search cache write failed")
	}
	return results, nil
}

// Health aggregates platform reachability, cache health and sync freshness.
func (s *Service) Health(ctx context.Context) models.HealthReport {
	now := time.Now().UTC()
	report := models.HealthReport{
		PlatformAPI:  s.api.Health(ctx),
		CacheHealthy: s.cache.Store().Healthy(ctx),
		Timestamp:    now,
	}

	lastSync, err := s.cache.LastSync(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("last sync lookup failed")
	}
	report.SyncStatus = models.ClassifySync(lastSync, now)
	if !lastSync.IsZero() {
		report.LastSync = &lastSync
	}

	report.Status = "ok"
	if report.PlatformAPI.Status != "healthy" || !report.CacheHealthy {
		report.Status = "degraded"
	}
	return report
}
