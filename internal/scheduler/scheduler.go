// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scheduler runs background synchronization of platform data into
// the cache.
//
// One sync run fetches taxonomies, resources and the profiles of users known
// to the feedback store. Entity types are isolated: a failure in one type is
// recorded and the others still commit. A run never panics and never returns
// a bare error; every outcome is a SyncResult.
//
// At most one run is in flight at any time. Manual triggers that arrive
// while a run is active are coalesced into ErrSyncInProgress; the periodic
// loop simply skips the tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/visey/recommender/internal/cache"
	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/feedback"
	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/metrics"
	"github.com/visey/recommender/internal/models"
	"github.com/visey/recommender/internal/platform"
)

// ErrSyncInProgress is returned by Trigger when a run is already active.
var ErrSyncInProgress = errors.New("sync already in progress")

// maxRecordedErrors bounds the per-run error list so a completely failing
// platform cannot balloon the result.
const maxRecordedErrors = 50

// Scheduler owns the periodic sync loop and manual triggers.
type Scheduler struct {
	api      platform.API
	cache    *cache.Cache
	feedback *feedback.Store
	cfg      config.SyncConfig

	// running guards the single-in-flight invariant. TryLock failure means
	// a run is active.
	running sync.Mutex

	mu         sync.RWMutex
	lastResult *models.SyncResult
}

// New builds a scheduler.
func New(api platform.API, c *cache.Cache, fb *feedback.Store, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{api: api, cache: c, feedback: fb, cfg: cfg}
}

// Run is the scheduler's service loop. It blocks until ctx is canceled and
// returns ctx.Err(). Periodic runs after the first are incremental.
func (s *Scheduler) Run(ctx context.Context) error {
	logging.Info().Dur("interval", s.cfg.Interval).Bool("on_startup", s.cfg.OnStartup).
		Msg("sync scheduler started")

	if s.cfg.OnStartup {
		if _, err := s.Trigger(ctx, false); err != nil && !errors.Is(err, ErrSyncInProgress) {
			logging.Error().Err(err).Msg("startup sync failed to start")
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("sync scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Trigger(ctx, false); errors.Is(err, ErrSyncInProgress) {
				logging.Warn().Msg("previous sync still running, skipping tick")
			}
		}
	}
}

// Trigger starts a sync run and returns its result. full forces a complete
// re-fetch; otherwise the run is incremental when a prior successful sync
// exists. Returns ErrSyncInProgress when a run is already active.
func (s *Scheduler) Trigger(ctx context.Context, full bool) (*models.SyncResult, error) {
	if !s.running.TryLock() {
		metrics.SyncRuns.WithLabelValues("coalesced").Inc()
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	result := s.run(ctx, full)

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()
	return result, nil
}

// LastResult returns the most recent sync result, or nil before the first
// run.
func (s *Scheduler) LastResult() *models.SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// run executes one sync pass. It never returns an error; failures are
// accumulated in the result.
func (s *Scheduler) run(ctx context.Context, full bool) *models.SyncResult {
	start := time.Now()
	result := &models.SyncResult{}

	var modifiedSince time.Time
	if !full {
		if last, err := s.cache.LastSync(ctx); err != nil {
			recordError(result, fmt.Sprintf("last sync lookup: %v", err))
		} else {
			modifiedSince = last
		}
	}
	result.Incremental = !modifiedSince.IsZero()

	logging.Info().Bool("incremental", result.Incremental).Msg("sync run started")

	// Entity types are isolated: each sync step records its own errors.
	s.syncTaxonomies(ctx, result)
	s.syncResources(ctx, modifiedSince, result)
	s.syncProfiles(ctx, result)

	if full {
		// A full re-fetch makes previously cached search results stale.
		if err := s.cache.InvalidateKind(ctx, cache.KindSearch); err != nil {
			recordError(result, fmt.Sprintf("invalidate search cache: %v", err))
		}
	}

	result.Partial = len(result.Errors) > 0
	result.Duration = time.Since(start)
	result.CompletedAt = time.Now().UTC()

	// The incremental watermark only advances on a clean run, so entities
	// missed by a failing run are retried by the next one.
	if !result.Partial {
		if err := s.cache.SetLastSync(ctx, result.CompletedAt); err != nil {
			recordError(result, fmt.Sprintf("record last sync: %v", err))
			result.Partial = true
		}
	}

	outcome := "success"
	if result.Partial {
		outcome = "partial"
	}
	metrics.SyncRuns.WithLabelValues(outcome).Inc()
	metrics.SyncDuration.Observe(result.Duration.Seconds())

	logging.Info().
		Int("profiles", result.ProfilesSynced).
		Int("resources", result.ResourcesSynced).
		Int("taxonomies", result.TaxonomiesSynced).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Str("outcome", outcome).
		Msg("sync run finished")
	return result
}

// syncTaxonomies refreshes the category and tag term lists. A failing
// taxonomy keeps its previous cache entry.
func (s *Scheduler) syncTaxonomies(ctx context.Context, result *models.SyncResult) {
	for _, taxonomy := range []string{"category", "tag"} {
		var terms []models.Term
		failed := false
		for term, err := range platform.AllTerms(ctx, s.api, taxonomy) {
			if err != nil {
				recordError(result, fmt.Sprintf("fetch %s terms: %v", taxonomy, err))
				failed = true
				break
			}
			terms = append(terms, term)
		}
		if failed {
			continue
		}
		if err := s.cache.SetTerms(ctx, taxonomy, terms); err != nil {
			recordError(result, fmt.Sprintf("cache %s terms: %v", taxonomy, err))
			continue
		}
		result.TaxonomiesSynced += len(terms)
		metrics.SyncEntities.WithLabelValues(string(cache.KindTaxonomy)).Add(float64(len(terms)))
	}
}

// syncResources fetches resources (all of them, or only those modified since
// the watermark) and maintains the resource ID index.
func (s *Scheduler) syncResources(ctx context.Context, modifiedSince time.Time, result *models.SyncResult) {
	incremental := !modifiedSince.IsZero()

	var fetched []int
	for res, err := range platform.AllResources(ctx, s.api, modifiedSince) {
		if err != nil {
			recordError(result, fmt.Sprintf("fetch resources: %v", err))
			break
		}

		if incremental {
			// Never let a stale fetch clobber a fresher cached copy.
			if cached, ok, _ := s.cache.GetResource(ctx, res.ID); ok && !res.Modified.After(cached.Modified) {
				fetched = append(fetched, res.ID)
				continue
			}
		}

		if err := s.cache.SetResource(ctx, &res); err != nil {
			recordError(result, fmt.Sprintf("cache resource %d: %v", res.ID, err))
			continue
		}
		fetched = append(fetched, res.ID)
		result.ResourcesSynced++
	}
	metrics.SyncEntities.WithLabelValues(string(cache.KindResource)).Add(float64(result.ResourcesSynced))

	if len(fetched) == 0 {
		return
	}

	ids := fetched
	if incremental {
		// Merge with the existing index; a full sync replaces it outright.
		if existing, ok, _ := s.cache.GetResourceIndex(ctx); ok {
			ids = append(ids, existing...)
		}
	}
	sort.Ints(ids)
	ids = dedupe(ids)
	if err := s.cache.SetResourceIndex(ctx, ids); err != nil {
		recordError(result, fmt.Sprintf("cache resource index: %v", err))
	}
}

// syncProfiles refreshes the profiles of every user known to the feedback
// store. Individual fetch failures are recorded and the rest proceed.
func (s *Scheduler) syncProfiles(ctx context.Context, result *models.SyncResult) {
	userIDs, err := s.feedback.UserIDs(ctx)
	if err != nil {
		recordError(result, fmt.Sprintf("list feedback users: %v", err))
		return
	}

	for _, id := range userIDs {
		profile, err := s.api.FetchUser(ctx, id)
		if err != nil {
			if platform.IsNotFound(err) {
				// User deleted on the platform; nothing to refresh.
				continue
			}
			recordError(result, fmt.Sprintf("fetch profile %d: %v", id, err))
			if platform.IsAuthError(err) {
				// Credentials are broken for every remaining user too.
				return
			}
			continue
		}
		if err := s.cache.SetProfile(ctx, profile); err != nil {
			recordError(result, fmt.Sprintf("cache profile %d: %v", id, err))
			continue
		}
		result.ProfilesSynced++
	}
	metrics.SyncEntities.WithLabelValues(string(cache.KindProfile)).Add(float64(result.ProfilesSynced))
}

// recordError appends a failure description, capped at maxRecordedErrors.
func recordError(result *models.SyncResult, msg string) {
	if len(result.Errors) >= maxRecordedErrors {
		return
	}
	result.Errors = append(result.Errors, msg)
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
