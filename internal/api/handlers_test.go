// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/visey/recommender/internal/cache"
	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/feedback"
	"github.com/visey/recommender/internal/models"
	"github.com/visey/recommender/internal/platform"
	"github.com/visey/recommender/internal/recommend"
	"github.com/visey/recommender/internal/scheduler"
)

// fakeAPI implements platform.API in memory.
type fakeAPI struct {
	users     map[int]*models.UserProfile
	resources []models.Resource
	results   []models.Resource

	// gate, when set, blocks ResourcesPage until released. gateEntered,
	// when set, is closed the first time a caller reaches the gate.
	gate        chan struct{}
	gateEntered chan struct{}
	gateOnce    sync.Once
}

func (f *fakeAPI) FetchUser(_ context.Context, id int) (*models.UserProfile, error) {
	if p, ok := f.users[id]; ok {
		return p, nil
	}
	return nil, &platform.NotFoundError{Kind: "user", ID: id}
}

func (f *fakeAPI) ResourcesPage(_ context.Context, page int, _ time.Time) ([]models.Resource, bool, error) {
	if f.gate != nil {
		if f.gateEntered != nil {
			f.gateOnce.Do(func() { close(f.gateEntered) })
		}
		<-f.gate
	}
	if page > 1 {
		return nil, false, nil
	}
	return f.resources, false, nil
}

func (f *fakeAPI) TermsPage(context.Context, string, int) ([]models.Term, bool, error) {
	return nil, false, nil
}

func (f *fakeAPI) Search(context.Context, string, int) ([]models.Resource, error) {
	return f.results, nil
}

func (f *fakeAPI) Health(context.Context) models.PlatformHealth {
	return models.PlatformHealth{Status: "healthy", AuthStatus: "not_configured"}
}

// newTestServer wires the full HTTP stack over in-memory fakes.
func newTestServer(t *testing.T, api *fakeAPI) (*httptest.Server, *cache.Cache, *feedback.Store) {
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

	scoringCfg := config.ScoringConfig{
		ContentWeight:    0.6,
		CollabWeight:     0.3,
		PopularityWeight: 0.1,
		TopN:             10,
		VectorWidth:      1024,
		RequestTimeout:   5 * time.Second,
	}
	engine := recommend.NewEngine(scoringCfg, nil)
	service := recommend.NewService(api, c, fb, engine, scoringCfg)
	sched := scheduler.New(api, c, fb, config.SyncConfig{Interval: time.Hour})

	handler := NewHandler(service, sched)
	mw := NewMiddleware(MiddlewareConfig{RateLimitDisabled: true})
	srv := httptest.NewServer(NewRouter(handler, mw))
	t.Cleanup(srv.Close)
	return srv, c, fb
}

func seedResources(t *testing.T, c *cache.Cache, resources ...models.Resource) {
	t.Helper()
	ctx := context.Background()
	ids := make([]int, 0, len(resources))
	for i := range resources {
		if err := c.SetResource(ctx, &resources[i]); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resources[i].ID)
	}
	if err := c.SetResourceIndex(ctx, ids); err != nil {
		t.Fatal(err)
	}
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestRecommendationsEndpoint(t *testing.T) {
	api := &fakeAPI{users: map[int]*models.UserProfile{
		1: {ID: 1, Industry: "fintech", Bio: "payments infrastructure"},
	}}
	srv, c, _ := newTestServer(t, api)
	seedResources(t, c,
		models.Resource{ID: 10, Title: "Payments infrastructure guide"},
		models.Resource{ID: 11, Title: "Gardening tips"},
	)

	resp, err := http.Get(srv.URL + "/api/v1/recommendations/1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("response should carry a request ID")
	}

	body := decodeResponse(t, resp)
	if !body.Success || body.Error != nil {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	data := body.Data.(map[string]interface{})
	recs := data["recommendations"].([]interface{})
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if body.Meta == nil || body.Meta.Count != 2 {
		t.Errorf("meta count missing: %+v", body.Meta)
	}
}

func TestRecommendationsNoData(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	resp, err := http.Get(srv.URL + "/api/v1/recommendations/1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty cache should 404, got %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Success || body.Error == nil || body.Error.Code != ErrCodeNoData {
		t.Errorf("unexpected error envelope: %+v", body)
	}
}

func TestRecommendationsInvalidUserID(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	for _, path := range []string{
		"/api/v1/recommendations/abc",
		"/api/v1/recommendations/-3",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestSubmitFeedbackEndpoint(t *testing.T) {
	srv, _, fb := newTestServer(t, &fakeAPI{})

	resp, err := http.Post(srv.URL+"/api/v1/feedback", "application/json",
		strings.NewReader(`{"user_id": 1, "resource_id": 10, "rating": 5}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	interactions, err := fb.InteractionsForUser(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(interactions) != 1 || interactions[0].ResourceID != 10 {
		t.Errorf("feedback not stored: %+v", interactions)
	}
	if interactions[0].Rating == nil || *interactions[0].Rating != 5 {
		t.Errorf("rating not stored: %+v", interactions[0])
	}
}

func TestSubmitFeedbackValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	cases := []struct {
		name string
		body string
	}{
		{"missing user", `{"resource_id": 10}`},
		{"rating too high", `{"user_id": 1, "resource_id": 10, "rating": 6}`},
		{"rating too low", `{"user_id": 1, "resource_id": 10, "rating": 0}`},
		{"not json", `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/feedback", "application/json",
				strings.NewReader(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			resp.Body.Close()
		})
	}
}

func TestTriggerSyncEndpoint(t *testing.T) {
	api := &fakeAPI{resources: []models.Resource{{ID: 1, Title: "A"}}}
	srv, c, _ := newTestServer(t, api)

	resp, err := http.Post(srv.URL+"/api/v1/sync?full=true", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if !body.Success {
		t.Fatalf("sync trigger failed: %+v", body)
	}
	data := body.Data.(map[string]interface{})
	if data["resources_synced"].(float64) != 1 {
		t.Errorf("unexpected sync result: %+v", data)
	}

	if _, ok, _ := c.GetResource(context.Background(), 1); !ok {
		t.Error("sync did not populate the cache")
	}
}

func TestTriggerSyncConflict(t *testing.T) {
	api := &fakeAPI{gate: make(chan struct{}), gateEntered: make(chan struct{})}
	srv, _, _ := newTestServer(t, api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Post(srv.URL+"/api/v1/sync", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()

	// Wait until the first request is inside the sync run, then expect 409.
	<-api.gateEntered
	deadline := time.After(2 * time.Second)
	for {
		resp, err := http.Post(srv.URL+"/api/v1/sync", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		status := resp.StatusCode
		resp.Body.Close()
		if status == http.StatusConflict {
			break
		}
		select {
		case <-deadline:
			t.Fatal("concurrent sync trigger never returned 409")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(api.gate)
	<-done
}

func TestSyncStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	resp, err := http.Get(srv.URL + "/api/v1/sync/status")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeResponse(t, resp)
	data := body.Data.(map[string]interface{})
	if data["status"] != "never_run" {
		t.Errorf("expected never_run before first sync: %+v", data)
	}
}

func TestSearchEndpoint(t *testing.T) {
	api := &fakeAPI{results: []models.Resource{{ID: 1, Title: "Hit"}}}
	srv, _, _ := newTestServer(t, api)

	resp, err := http.Get(srv.URL + "/api/v1/search?q=hiring")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	data := body.Data.(map[string]interface{})
	if len(data["results"].([]interface{})) != 1 {
		t.Errorf("unexpected search payload: %+v", data)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	resp, err := http.Get(srv.URL + "/api/v1/search")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q should 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeResponse(t, resp)
	if !body.Success {
		t.Fatalf("health envelope: %+v", body)
	}
	data := body.Data.(map[string]interface{})
	if data["status"] != "ok" || data["sync_status"] != "never" {
		t.Errorf("unexpected health report: %+v", data)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeAPI{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}
