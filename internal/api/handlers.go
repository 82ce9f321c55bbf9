// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/models"
	"github.com/visey/recommender/internal/recommend"
	"github.com/visey/recommender/internal/scheduler"
	"github.com/visey/recommender/internal/validation"
)

// Handler holds the dependencies of the HTTP endpoints.
type Handler struct {
	service   *recommend.Service
	scheduler *scheduler.Scheduler
}

// NewHandler creates the API handler.
func NewHandler(service *recommend.Service, sched *scheduler.Scheduler) *Handler {
	return &Handler{service: service, scheduler: sched}
}

// Recommendations handles GET /api/v1/recommendations/{userID}.
// Query parameters: limit (optional, defaults to the configured top-n).
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID <= 0 {
		rw.BadRequest("user ID must be a positive integer")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
	}

	recs, err := h.service.Recommend(r.Context(), userID, limit)
	switch {
	case errors.Is(err, recommend.ErrNoData):
		rw.Error(http.StatusNotFound, ErrCodeNoData,
			"No synchronized resources available yet; trigger a sync first")
		return
	case err != nil:
		logging.Error().Err(err).Int("user_id", userID).Msg("recommendation request failed")
		rw.InternalError("Failed to generate recommendations")
		return
	}

	rw.SuccessWithMeta(map[string]interface{}{
		"user_id":         userID,
		"recommendations": recs,
	}, &APIMeta{Count: len(recs)})
}

// feedbackRequest is the POST /api/v1/feedback payload.
type feedbackRequest struct {
	UserID     int  `json:"user_id" validate:"required,gt=0"`
	ResourceID int  `json:"resource_id" validate:"required,gt=0"`
	Rating     *int `json:"rating" validate:"omitempty,min=1,max=5"`
}

// SubmitFeedback handles POST /api/v1/feedback. Re-submitting a (user,
// resource) pair overwrites the previous rating.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("request body must be valid JSON")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		var re *validation.RequestError
		if errors.As(err, &re) {
			rw.ValidationError("invalid feedback submission", re.Fields)
		} else {
			rw.BadRequest(err.Error())
		}
		return
	}

	in := models.Interaction{
		UserID:     req.UserID,
		ResourceID: req.ResourceID,
		Rating:     req.Rating,
	}
	if err := h.service.SubmitFeedback(r.Context(), in); err != nil {
		logging.Error().Err(err).Int("user_id", req.UserID).
			Int("resource_id", req.ResourceID).Msg("feedback write failed")
		rw.InternalError("Failed to store feedback")
		return
	}

	rw.Created(map[string]interface{}{
		"user_id":     req.UserID,
		"resource_id": req.ResourceID,
	})
}

// TriggerSync handles POST /api/v1/sync. The run executes synchronously and
// the response carries its result. Query parameters: full=true forces a
// complete re-fetch instead of an incremental run.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	full := r.URL.Query().Get("full") == "true"
	result, err := h.scheduler.Trigger(r.Context(), full)
	if errors.Is(err, scheduler.ErrSyncInProgress) {
		rw.Conflict("A sync run is already in progress")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("manual sync trigger failed")
		rw.InternalError("Failed to run sync")
		return
	}
	rw.Success(result)
}

// SyncStatus handles GET /api/v1/sync/status, returning the most recent sync
// result.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	result := h.scheduler.LastResult()
	if result == nil {
		rw.Success(map[string]interface{}{"status": "never_run"})
		return
	}
	rw.Success(result)
}

// Search handles GET /api/v1/search. Query parameters: q (required), limit
// (optional, default 10, max 100).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	query := r.URL.Query().Get("q")
	if query == "" {
		rw.BadRequest("query parameter q is required")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 100 {
			rw.BadRequest("limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	results, err := h.service.Search(r.Context(), query, limit)
	if err != nil {
		rw.UpstreamError(err)
		return
	}
	if results == nil {
		results = []models.Resource{}
	}

	rw.SuccessWithMeta(map[string]interface{}{
		"query":   query,
		"results": results,
	}, &APIMeta{Count: len(results)})
}

// Health handles GET /api/v1/health with the aggregated health report. The
// HTTP status is 200 even when degraded; monitors read the report body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.service.Health(r.Context()))
}

// Healthz is the bare liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
