// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the shared domain types synchronized from the
// content platform and produced by the recommendation engine.
//
// Entity types (UserProfile, Resource, Term) are owned by the cache layer
// and refreshed by the synchronization scheduler or by on-demand fetches.
// Interactions are owned exclusively by the feedback store and are never
// cached. Recommendations and SyncResults are ephemeral: computed per
// request (or per sync run) and never persisted.
package models
