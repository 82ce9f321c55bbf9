// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package embeddings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/visey/recommender/internal/config"
)

func TestNewClientDisabledWithoutURL(t *testing.T) {
	if c := NewClient(&config.EmbeddingsConfig{}); c != nil {
		t.Error("no URL should yield a nil (disabled) client")
	}
}

func TestEncode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("api key not sent: %q", got)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Input) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		// Return vectors out of order to exercise index handling.
		_, _ = w.Write([]byte(`{"data": [
			{"index": 1, "embedding": [0.3, 0.4]},
			{"index": 0, "embedding": [0.1, 0.2]}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(&config.EmbeddingsConfig{
		URL:     srv.URL,
		APIKey:  "key-1",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})

	vecs, err := client.Encode(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][1] != 0.4 {
		t.Errorf("vectors not ordered by index: %v", vecs)
	}
}

func TestEncodeBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(&config.EmbeddingsConfig{URL: srv.URL, Timeout: time.Second})
	if _, err := client.Encode(context.Background(), []string{"x"}); err == nil {
		t.Error("backend error should surface")
	}
}

func TestEncodeEmptyInput(t *testing.T) {
	client := NewClient(&config.EmbeddingsConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})
	vecs, err := client.Encode(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("empty input should short-circuit: %v %v", vecs, err)
	}
}
