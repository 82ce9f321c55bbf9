// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache implements the TTL cache layer for synchronized platform
// data.
//
// Two backends implement the Store interface: an embedded BadgerDB store
// (local mode) and a NATS JetStream key-value store (distributed mode, for
// multi-instance deployments that share one cache). The factory in
// factory.go selects between them; auto mode probes NATS and falls back to
// Badger.
//
// Semantics every backend must honor:
//   - An expired entry is indistinguishable from an absent one.
//   - Set atomically overwrites any previous value and restarts the TTL.
//   - A zero TTL stores the entry without expiry.
//
// The typed layer on top treats a non-positive per-kind TTL as already
// expired; only meta entries use the backends' no-expiry path.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/metrics"
	"github.com/visey/recommender/internal/models"
)

// Kind labels the entity class of a cache entry. TTLs and metrics are
// per kind.
type Kind string

const (
	KindProfile  Kind = "profile"
	KindResource Kind = "resource"
	KindTaxonomy Kind = "taxonomy"
	KindSearch   Kind = "search"
	KindMeta     Kind = "meta"
)

// Store is the raw byte-level cache backend.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or
	// expired; expired entries are never returned.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set overwrites key with value. A zero ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Healthy reports whether the backend is usable.
	Healthy(ctx context.Context) bool

	// Name identifies the backend ("badger" or "nats").
	Name() string

	Close() error
}

// Cache is the typed cache layer used by the scheduler and the recommender
// service. It owns key construction, JSON encoding and per-kind TTLs.
type Cache struct {
	store Store
	ttls  map[Kind]time.Duration
}

// New wraps a Store with the configured per-kind TTLs.
func New(store Store, cfg *config.CacheConfig) *Cache {
	return &Cache{
		store: store,
		ttls: map[Kind]time.Duration{
			KindProfile:  cfg.ProfileTTL,
			KindResource: cfg.ResourceTTL,
			KindTaxonomy: cfg.TaxonomyTTL,
			KindSearch:   cfg.SearchTTL,
			KindMeta:     0, // sync bookkeeping never expires
		},
	}
}

// Store exposes the underlying backend, for health checks.
func (c *Cache) Store() Store { return c.store }

// Keys use '.' as the separator: NATS KV keys cannot contain ':'.

func profileKey(userID int) string  { return "profile." + strconv.Itoa(userID) }
func resourceKey(id int) string     { return "resource." + strconv.Itoa(id) }
func taxonomyKey(tax string) string { return "taxonomy." + tax }

// The index lives under the resource prefix, not meta, so invalidating the
// resource kind drops it together with the entries it points at.
const (
	resourceIndexKey = "resource.index"
	lastSyncKey      = "meta.last_sync"
)

// searchKey hashes the query so arbitrary user input maps to a safe key.
func searchKey(query string) string {
	return fmt.Sprintf("search.%016x", xxhash.Sum64String(query))
}

func (c *Cache) get(ctx context.Context, kind Kind, key string, out any) (bool, error) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues(string(kind)).Inc()
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	metrics.CacheHits.WithLabelValues(string(kind)).Inc()
	return true, nil
}

func (c *Cache) set(ctx context.Context, kind Kind, key string, v any) error {
	ttl := c.ttls[kind]
	if kind != KindMeta && ttl <= 0 {
		// The entry is expired on arrival. Drop any previous copy so the
		// next get misses.
		return c.store.Delete(ctx, key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", key, err)
	}
	return c.store.Set(ctx, key, data, ttl)
}

// GetProfile returns the cached profile for userID, if present and fresh.
func (c *Cache) GetProfile(ctx context.Context, userID int) (*models.UserProfile, bool, error) {
	var p models.UserProfile
	ok, err := c.get(ctx, KindProfile, profileKey(userID), &p)
	if !ok || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// SetProfile caches a profile under the profile TTL.
func (c *Cache) SetProfile(ctx context.Context, p *models.UserProfile) error {
	return c.set(ctx, KindProfile, profileKey(p.ID), p)
}

// GetResource returns the cached resource, if present and fresh.
func (c *Cache) GetResource(ctx context.Context, id int) (*models.Resource, bool, error) {
	var r models.Resource
	ok, err := c.get(ctx, KindResource, resourceKey(id), &r)
	if !ok || err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// SetResource caches a resource under the resource TTL.
func (c *Cache) SetResource(ctx context.Context, r *models.Resource) error {
	return c.set(ctx, KindResource, resourceKey(r.ID), r)
}

// GetTerms returns the cached term list for a taxonomy ("category"/"tag").
func (c *Cache) GetTerms(ctx context.Context, taxonomy string) ([]models.Term, bool, error) {
	var terms []models.Term
	ok, err := c.get(ctx, KindTaxonomy, taxonomyKey(taxonomy), &terms)
	if !ok || err != nil {
		return nil, false, err
	}
	return terms, true, nil
}

// SetTerms caches the full term list of a taxonomy under the taxonomy TTL.
func (c *Cache) SetTerms(ctx context.Context, taxonomy string, terms []models.Term) error {
	return c.set(ctx, KindTaxonomy, taxonomyKey(taxonomy), terms)
}

// GetResourceIndex returns the ordered list of cached resource IDs. The
// index gives candidate iteration a stable order; it is maintained by the
// scheduler and shares the resource TTL so it never outlives its entries.
func (c *Cache) GetResourceIndex(ctx context.Context) ([]int, bool, error) {
	var ids []int
	ok, err := c.get(ctx, KindResource, resourceIndexKey, &ids)
	if !ok || err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

// SetResourceIndex caches the ordered resource ID index.
func (c *Cache) SetResourceIndex(ctx context.Context, ids []int) error {
	return c.set(ctx, KindResource, resourceIndexKey, ids)
}

// GetSearch returns cached search results for a query, if fresh.
func (c *Cache) GetSearch(ctx context.Context, query string) ([]models.Resource, bool, error) {
	var results []models.Resource
	ok, err := c.get(ctx, KindSearch, searchKey(query), &results)
	if !ok || err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// SetSearch caches search results under the search TTL.
func (c *Cache) SetSearch(ctx context.Context, query string, results []models.Resource) error {
	return c.set(ctx, KindSearch, searchKey(query), results)
}

// InvalidateProfile drops a single cached profile.
func (c *Cache) InvalidateProfile(ctx context.Context, userID int) error {
	return c.store.Delete(ctx, profileKey(userID))
}

// InvalidateKind drops every entry of one kind, for example all cached
// search results after a full re-sync.
func (c *Cache) InvalidateKind(ctx context.Context, kind Kind) error {
	return c.store.DeletePrefix(ctx, string(kind)+".")
}

// LastSync returns the completion time of the last successful sync, or a
// zero time when none has completed.
func (c *Cache) LastSync(ctx context.Context) (time.Time, error) {
	var ts time.Time
	ok, err := c.get(ctx, KindMeta, lastSyncKey, &ts)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return ts, nil
}

// SetLastSync records the completion time of a successful sync. The entry
// never expires.
func (c *Cache) SetLastSync(ctx context.Context, ts time.Time) error {
	return c.set(ctx, KindMeta, lastSyncKey, ts)
}
