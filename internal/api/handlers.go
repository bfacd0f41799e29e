package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fastandpray/promo-dispatch/internal/dispatch"
	"github.com/fastandpray/promo-dispatch/internal/pkg/logger"
	"github.com/fastandpray/promo-dispatch/internal/ratelimit"
	"github.com/fastandpray/promo-dispatch/internal/taskqueue"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	campaigns dispatch.CampaignStore
	queue     taskqueue.Queue
	limiter   *ratelimit.Limiter
	startTime time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns dispatch.CampaignStore, queue taskqueue.Queue, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		campaigns: campaigns,
		queue:     queue,
		limiter:   limiter,
		startTime: time.Now(),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startTime).String(),
	})
}

// GetCampaign returns a campaign's current lifecycle state and stats.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.campaigns.Get(r.Context(), id)
	if errors.Is(err, dispatch.ErrCampaignNotFound) {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		logger.Error("campaign lookup failed", "campaign_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "campaign lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// DispatchCampaign enqueues a full dispatch run for the campaign. Terminal
// campaigns are rejected; re-sending one requires authoring-side action
// first.
func (h *Handlers) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.campaigns.Get(r.Context(), id)
	if errors.Is(err, dispatch.ErrCampaignNotFound) {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		logger.Error("campaign lookup failed", "campaign_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "campaign lookup failed")
		return
	}
	if c.IsTerminal() {
		respondError(w, http.StatusConflict, "campaign is in terminal status "+string(c.Status))
		return
	}

	job := taskqueue.Job{CampaignID: id, StartIndex: 0}
	if err := h.queue.Enqueue(r.Context(), job, 0); err != nil {
		logger.Error("dispatch enqueue failed", "campaign_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	logger.Info("campaign dispatch requested", "campaign_id", id)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": id,
		"status":      "queued",
	})
}

// RateLimitStatus reports the shared send window's current usage.
func (h *Handlers) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	count, err := h.limiter.Count(r.Context())
	if err != nil {
		logger.Error("rate limit read failed", "error", err)
		respondError(w, http.StatusInternalServerError, "rate limit read failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":          count,
		"ceiling":        h.limiter.Ceiling(),
		"window_seconds": int(h.limiter.Window().Seconds()),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
