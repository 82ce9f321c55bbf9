// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/models"
)

func testCache(t *testing.T, mutate func(*config.CacheConfig)) *Cache {
	t.Helper()
	cfg := &config.CacheConfig{
		Backend:     config.BackendLocal,
		Path:        t.TempDir(),
		ProfileTTL:  time.Hour,
		ResourceTTL: time.Hour,
		TaxonomyTTL: time.Hour,
		SearchTTL:   time.Hour,
	}
	if mutate != nil {
		mutate(cfg)
	}
	store, err := NewBadgerStore(cfg.Path)
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, cfg)
}

func TestProfileRoundTrip(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	if _, ok, err := c.GetProfile(ctx, 1); ok || err != nil {
		t.Fatalf("empty cache should miss: ok=%v err=%v", ok, err)
	}

	profile := &models.UserProfile{ID: 1, Name: "Asha", Industry: "fintech"}
	if err := c.SetProfile(ctx, profile); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	got, ok, err := c.GetProfile(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("GetProfile: ok=%v err=%v", ok, err)
	}
	if got.Name != "Asha" || got.Industry != "fintech" {
		t.Errorf("unexpected profile: %+v", got)
	}
}

func TestSetOverwrites(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	if err := c.SetResource(ctx, &models.Resource{ID: 5, Title: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetResource(ctx, &models.Resource{ID: 5, Title: "new"}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.GetResource(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("GetResource: ok=%v err=%v", ok, err)
	}
	if got.Title != "new" {
		t.Errorf("overwrite lost: %q", got.Title)
	}
}

func TestExpiredEntryIsAbsent(t *testing.T) {
	c := testCache(t, func(cfg *config.CacheConfig) {
		cfg.ResourceTTL = 50 * time.Millisecond
	})
	ctx := context.Background()

	if err := c.SetResource(ctx, &models.Resource{ID: 9, Title: "fleeting"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	if _, ok, err := c.GetResource(ctx, 9); ok || err != nil {
		t.Errorf("expired entry should behave like a miss: ok=%v err=%v", ok, err)
	}
}

func TestZeroTTLTreatedAsExpired(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	live := New(store, &config.CacheConfig{
		ProfileTTL: time.Hour, ResourceTTL: time.Hour,
		TaxonomyTTL: time.Hour, SearchTTL: time.Hour,
	})
	dead := New(store, &config.CacheConfig{ProfileTTL: time.Hour})
	ctx := context.Background()

	// A write under a zero TTL is expired on arrival.
	if err := dead.SetResource(ctx, &models.Resource{ID: 1, Title: "gone"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := dead.GetResource(ctx, 1); ok {
		t.Error("zero-TTL entry should be absent on the next get")
	}

	// It also drops any fresh copy it overwrites.
	if err := live.SetResource(ctx, &models.Resource{ID: 2, Title: "fresh"}); err != nil {
		t.Fatal(err)
	}
	if err := dead.SetResource(ctx, &models.Resource{ID: 2, Title: "stale"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := live.GetResource(ctx, 2); ok {
		t.Error("zero-TTL overwrite should leave the entry absent")
	}

	// Meta bookkeeping keeps its explicit no-expiry path.
	want := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if err := dead.SetLastSync(ctx, want); err != nil {
		t.Fatal(err)
	}
	if ts, err := dead.LastSync(ctx); err != nil || !ts.Equal(want) {
		t.Errorf("last sync should survive: %v %v", ts, err)
	}
}

func TestTermsRoundTrip(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	terms := []models.Term{
		{ID: 1, Name: "SaaS", Taxonomy: "category"},
		{ID: 2, Name: "Fundraising", Taxonomy: "category"},
	}
	if err := c.SetTerms(ctx, "category", terms); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.GetTerms(ctx, "category")
	if err != nil || !ok {
		t.Fatalf("GetTerms: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1].Name != "Fundraising" {
		t.Errorf("unexpected terms: %+v", got)
	}

	if _, ok, _ := c.GetTerms(ctx, "tag"); ok {
		t.Error("tag taxonomy should be a separate entry")
	}
}

func TestResourceIndex(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	if _, ok, _ := c.GetResourceIndex(ctx); ok {
		t.Fatal("index should start absent")
	}
	if err := c.SetResourceIndex(ctx, []int{3, 7, 11}); err != nil {
		t.Fatal(err)
	}
	ids, ok, err := c.GetResourceIndex(ctx)
	if err != nil || !ok {
		t.Fatalf("GetResourceIndex: ok=%v err=%v", ok, err)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[2] != 11 {
		t.Errorf("unexpected index: %v", ids)
	}
}

func TestSearchCache(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	results := []models.Resource{{ID: 1, Title: "Hiring guide"}}
	if err := c.SetSearch(ctx, "hiring", results); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.GetSearch(ctx, "hiring")
	if err != nil || !ok {
		t.Fatalf("GetSearch: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].Title != "Hiring guide" {
		t.Errorf("unexpected results: %+v", got)
	}

	if _, ok, _ := c.GetSearch(ctx, "other query"); ok {
		t.Error("different query should miss")
	}
}

func TestLastSync(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	ts, err := c.LastSync(ctx)
	if err != nil || !ts.IsZero() {
		t.Fatalf("fresh cache should report zero last sync: %v %v", ts, err)
	}

	want := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if err := c.SetLastSync(ctx, want); err != nil {
		t.Fatal(err)
	}
	ts, err = c.LastSync(ctx)
	if err != nil || !ts.Equal(want) {
		t.Errorf("LastSync = %v, want %v (err %v)", ts, want, err)
	}
}

func TestBadgerStoreDelete(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("deleted key should be absent")
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting absent key should not error: %v", err)
	}
	if !store.Healthy(ctx) {
		t.Error("open store should report healthy")
	}
}

func TestInvalidateProfile(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	if err := c.SetProfile(ctx, &models.UserProfile{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetProfile(ctx, &models.UserProfile{ID: 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateProfile(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.GetProfile(ctx, 1); ok {
		t.Error("invalidated profile should be absent")
	}
	if _, ok, _ := c.GetProfile(ctx, 2); !ok {
		t.Error("other profiles must survive a single-key invalidation")
	}
}

func TestInvalidateKind(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	if err := c.SetSearch(ctx, "hiring", []models.Resource{{ID: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetSearch(ctx, "funding", []models.Resource{{ID: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetResource(ctx, &models.Resource{ID: 3, Title: "kept"}); err != nil {
		t.Fatal(err)
	}

	if err := c.InvalidateKind(ctx, KindSearch); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.GetSearch(ctx, "hiring"); ok {
		t.Error("search entries should be gone")
	}
	if _, ok, _ := c.GetSearch(ctx, "funding"); ok {
		t.Error("search entries should be gone")
	}
	if _, ok, _ := c.GetResource(ctx, 3); !ok {
		t.Error("other kinds must survive a kind invalidation")
	}
}

func TestInvalidateKindCoversResourceIndex(t *testing.T) {
	c := testCache(t, nil)
	ctx := context.Background()

	if err := c.SetResource(ctx, &models.Resource{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetResourceIndex(ctx, []int{1}); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateKind(ctx, KindResource); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.GetResource(ctx, 1); ok {
		t.Error("resource should be gone")
	}
	if _, ok, _ := c.GetResourceIndex(ctx); ok {
		t.Error("index belongs to the resource kind and should be gone too")
	}
}

func TestSearchKeyIsStable(t *testing.T) {
	if searchKey("hiring") != searchKey("hiring") {
		t.Error("same query must map to same key")
	}
	if searchKey("a") == searchKey("b") {
		t.Error("different queries should map to different keys")
	}
}
