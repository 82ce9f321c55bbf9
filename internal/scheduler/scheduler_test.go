// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/visey/recommender/internal/cache"
	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/feedback"
	"github.com/visey/recommender/internal/models"
	"github.com/visey/recommender/internal/platform"
)

// fakeAPI implements platform.API for scheduler tests.
type fakeAPI struct {
	users     map[int]*models.UserProfile
	resources []models.Resource
	terms     map[string][]models.Term

	failTerms     bool
	failResources bool
	failUsers     bool

	// gate, when set, blocks ResourcesPage until released. gateEntered,
	// when set, is closed the first time a caller reaches the gate.
	gate        chan struct{}
	gateEntered chan struct{}
	gateOnce    sync.Once

	lastModifiedSince time.Time
}

func (f *fakeAPI) FetchUser(_ context.Context, id int) (*models.UserProfile, error) {
	if f.failUsers {
		return nil, &platform.NetworkError{Endpoint: "users", Err: errors.New("down")}
	}
	if p, ok := f.users[id]; ok {
		return p, nil
	}
	return nil, &platform.NotFoundError{Kind: "user", ID: id}
}

func (f *fakeAPI) ResourcesPage(_ context.Context, page int, modifiedSince time.Time) ([]models.Resource, bool, error) {
	if f.gate != nil {
		if f.gateEntered != nil {
			f.gateOnce.Do(func() { close(f.gateEntered) })
		}
		<-f.gate
	}
	if f.failResources {
		return nil, false, &platform.NetworkError{Endpoint: "posts", Err: errors.New("down")}
	}
	f.lastModifiedSince = modifiedSince
	if page > 1 {
		return nil, false, nil
	}
	if modifiedSince.IsZero() {
		return f.resources, false, nil
	}
	var out []models.Resource
	for _, r := range f.resources {
		if r.Modified.After(modifiedSince) {
			out = append(out, r)
		}
	}
	return out, false, nil
}

func (f *fakeAPI) TermsPage(_ context.Context, taxonomy string, page int) ([]models.Term, bool, error) {
	if f.failTerms {
		return nil, false, &platform.NetworkError{Endpoint: taxonomy, Err: errors.New("down")}
	}
	if page > 1 {
		return nil, false, nil
	}
	return f.terms[taxonomy], false, nil
}

func (f *fakeAPI) Search(context.Context, string, int) ([]models.Resource, error) {
	return nil, nil
}

func (f *fakeAPI) Health(context.Context) models.PlatformHealth {
	return models.PlatformHealth{Status: "healthy"}
}

func testScheduler(t *testing.T, api *fakeAPI) (*Scheduler, *cache.Cache, *feedback.Store) {
	t.Helper()
	cacheCfg := &config.CacheConfig{
		Backend:     config.BackendLocal,
		Path:        t.TempDir(),
		ProfileTTL:  time.Hour,
		ResourceTTL: time.Hour,
		TaxonomyTTL: time.Hour,
		SearchTTL:   time.Hour,
	}
	store, err := cache.NewBadgerStore(cacheCfg.Path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	c := cache.New(store, cacheCfg)

	fb, err := feedback.Open(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = fb.Close() })

	cfg := config.SyncConfig{Interval: time.Hour}
	return New(api, c, fb, cfg), c, fb
}

func TestFullSyncPopulatesCache(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		users: map[int]*models.UserProfile{1: {ID: 1, Name: "Asha"}},
		resources: []models.Resource{
			{ID: 20, Title: "B", Modified: now},
			{ID: 10, Title: "A", Modified: now},
		},
		terms: map[string][]models.Term{
			"category": {{ID: 1, Name: "SaaS", Taxonomy: "category"}},
			"tag":      {{ID: 2, Name: "Seed", Taxonomy: "tag"}},
		},
	}
	sched, c, fb := testScheduler(t, api)
	ctx := context.Background()

	if err := fb.Upsert(ctx, models.Interaction{UserID: 1, ResourceID: 10}); err != nil {
		t.Fatal(err)
	}

	result, err := sched.Trigger(ctx, true)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if result.Partial || len(result.Errors) != 0 {
		t.Fatalf("clean run reported errors: %+v", result)
	}
	if result.ResourcesSynced != 2 || result.TaxonomiesSynced != 2 || result.ProfilesSynced != 1 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if result.Incremental {
		t.Error("first run should be full, not incremental")
	}

	if _, ok, _ := c.GetResource(ctx, 10); !ok {
		t.Error("resource 10 not cached")
	}
	ids, ok, _ := c.GetResourceIndex(ctx)
	if !ok || len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("index should be sorted ascending: %v", ids)
	}
	if _, ok, _ := c.GetProfile(ctx, 1); !ok {
		t.Error("profile not cached")
	}
	last, _ := c.LastSync(ctx)
	if last.IsZero() {
		t.Error("clean run should advance the last sync watermark")
	}
	if sched.LastResult() == nil {
		t.Error("LastResult should be recorded")
	}
}

func TestFullSyncDropsSearchCache(t *testing.T) {
	api := &fakeAPI{resources: []models.Resource{{ID: 1, Title: "A"}}}
	sched, c, _ := testScheduler(t, api)
	ctx := context.Background()

	if err := c.SetSearch(ctx, "hiring", []models.Resource{{ID: 9}}); err != nil {
		t.Fatal(err)
	}

	if _, err := sched.Trigger(ctx, true); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if _, ok, _ := c.GetSearch(ctx, "hiring"); ok {
		t.Error("full sync should invalidate cached search results")
	}

	if err := c.SetSearch(ctx, "hiring", []models.Resource{{ID: 9}}); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Trigger(ctx, false); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if _, ok, _ := c.GetSearch(ctx, "hiring"); !ok {
		t.Error("incremental sync should leave search results alone")
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	api := &fakeAPI{
		failTerms: true,
		resources: []models.Resource{{ID: 1, Title: "A"}},
	}
	sched, c, _ := testScheduler(t, api)
	ctx := context.Background()

	result, err := sched.Trigger(ctx, true)
	if err != nil {
		t.Fatalf("a failing run must still return a result: %v", err)
	}
	if !result.Partial || len(result.Errors) == 0 {
		t.Errorf("taxonomy failure should mark the run partial: %+v", result)
	}
	if result.ResourcesSynced != 1 {
		t.Errorf("resource sync should proceed despite taxonomy failure: %+v", result)
	}
	last, _ := c.LastSync(ctx)
	if !last.IsZero() {
		t.Error("partial run must not advance the watermark")
	}
}

func TestTotalFailureStillReturnsResult(t *testing.T) {
	api := &fakeAPI{failTerms: true, failResources: true, failUsers: true}
	sched, _, fb := testScheduler(t, api)
	ctx := context.Background()
	if err := fb.Upsert(ctx, models.Interaction{UserID: 5, ResourceID: 1}); err != nil {
		t.Fatal(err)
	}

	result, err := sched.Trigger(ctx, true)
	if err != nil {
		t.Fatalf("total failure must not surface as an error: %v", err)
	}
	if !result.Partial || result.ResourcesSynced != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestConcurrentTriggerCoalesced(t *testing.T) {
	api := &fakeAPI{gate: make(chan struct{}), gateEntered: make(chan struct{})}
	sched, _, _ := testScheduler(t, api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sched.Trigger(context.Background(), true)
	}()

	// Wait until the first run blocks inside ResourcesPage.
	<-api.gateEntered
	deadline := time.After(2 * time.Second)
	for {
		if _, err := sched.Trigger(context.Background(), true); errors.Is(err, ErrSyncInProgress) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second trigger never observed an in-flight run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(api.gate)
	<-done
}

func TestIncrementalSyncUsesWatermark(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		resources: []models.Resource{
			{ID: 1, Title: "old", Modified: base},
			{ID: 2, Title: "new", Modified: base.Add(48 * time.Hour)},
		},
	}
	sched, c, _ := testScheduler(t, api)
	ctx := context.Background()

	// Full sync establishes the watermark.
	if _, err := sched.Trigger(ctx, true); err != nil {
		t.Fatal(err)
	}
	watermark, _ := c.LastSync(ctx)
	if watermark.IsZero() {
		t.Fatal("watermark not set")
	}

	// Resource 2 is modified after the watermark; resource 1 is not.
	api.resources[1].Modified = watermark.Add(time.Hour)
	api.resources[1].Title = "updated"

	result, err := sched.Trigger(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Incremental {
		t.Error("second run should be incremental")
	}
	if api.lastModifiedSince.IsZero() {
		t.Error("incremental run should pass the watermark to the platform")
	}

	got, ok, _ := c.GetResource(ctx, 2)
	if !ok || got.Title != "updated" {
		t.Errorf("modified resource should be overwritten: %+v", got)
	}

	ids, ok, _ := c.GetResourceIndex(ctx)
	if !ok || len(ids) != 2 {
		t.Errorf("incremental run should preserve the merged index: %v", ids)
	}
}

func TestIncrementalDoesNotClobberFresherCache(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		resources: []models.Resource{{ID: 1, Title: "v1", Modified: base}},
	}
	sched, c, _ := testScheduler(t, api)
	ctx := context.Background()

	if _, err := sched.Trigger(ctx, true); err != nil {
		t.Fatal(err)
	}

	// Cache a copy fresher than what the platform will return: the fetch
	// falls inside the incremental window but carries an older Modified.
	watermark, _ := c.LastSync(ctx)
	fresher := models.Resource{ID: 1, Title: "fresher", Modified: watermark.Add(time.Hour)}
	if err := c.SetResource(ctx, &fresher); err != nil {
		t.Fatal(err)
	}
	api.resources[0].Modified = watermark.Add(time.Minute)
	api.resources[0].Title = "stale-refetch"

	if _, err := sched.Trigger(ctx, false); err != nil {
		t.Fatal(err)
	}

	got, ok, _ := c.GetResource(ctx, 1)
	if !ok || got.Title != "fresher" {
		t.Errorf("stale fetch clobbered fresher cache copy: %+v", got)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]int{1, 1, 2, 3, 3, 3, 4})
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("dedupe = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupe[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
