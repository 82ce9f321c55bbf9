// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// SyncResult describes the outcome of a single synchronization run. It is
// produced once per scheduler run (or manual trigger) and is immutable once
// created.
type SyncResult struct {
	// ProfilesSynced is the number of user profiles written to cache.
	ProfilesSynced int `json:"profiles_synced"`

	// ResourcesSynced is the number of resources written to cache.
	ResourcesSynced int `json:"resources_synced"`

	// TaxonomiesSynced is the number of taxonomy terms written to cache.
	TaxonomiesSynced int `json:"taxonomies_synced"`

	// Errors holds per-item error descriptions accumulated during the run.
	// A non-empty list marks the run as a partial failure; successfully
	// fetched data is still committed.
	Errors []string `json:"errors,omitempty"`

	// Partial reports whether one or more entity types failed.
	Partial bool `json:"partial"`

	// Incremental reports whether the run only fetched entities modified
	// since the last successful sync.
	Incremental bool `json:"incremental"`

	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`
}

// SyncStatus classifies how fresh the cached data is, based on the time of
// the last successful sync.
type SyncStatus string

const (
	// SyncStatusNever indicates no sync has completed yet.
	SyncStatusNever SyncStatus = "never"
	// SyncStatusRecent indicates the last sync was under an hour ago.
	SyncStatusRecent SyncStatus = "recent"
	// SyncStatusStale indicates the last sync was within the last day.
	SyncStatusStale SyncStatus = "stale"
	// SyncStatusVeryStale indicates the last sync was over a day ago.
	SyncStatusVeryStale SyncStatus = "very_stale"
)

// ClassifySync maps the time since the last successful sync to a SyncStatus.
func ClassifySync(lastSync time.Time, now time.Time) SyncStatus {
	if lastSync.IsZero() {
		return SyncStatusNever
	}
	age := now.Sub(lastSync)
	switch {
	case age < time.Hour:
		return SyncStatusRecent
	case age < 24*time.Hour:
		return SyncStatusStale
	default:
		return SyncStatusVeryStale
	}
}

// PlatformHealth reports reachability and authentication state of the
// external content platform.
type PlatformHealth struct {
	// Status is "healthy" or "unhealthy".
	Status string `json:"status"`

	// AuthStatus is "not_configured", "authenticated" or
	// "authentication_failed".
	AuthStatus string `json:"auth_status"`

	// Error carries the failure description when Status is "unhealthy".
	Error string `json:"error,omitempty"`
}

// HealthReport is the aggregated health surface returned by the health
// endpoint.
type HealthReport struct {
	Status       string         `json:"status"`
	PlatformAPI  PlatformHealth `json:"platform_api"`
	CacheHealthy bool           `json:"cache_healthy"`
	LastSync     *time.Time     `json:"last_sync,omitempty"`
	SyncStatus   SyncStatus     `json:"sync_status"`
	Timestamp    time.Time      `json:"timestamp"`
}
