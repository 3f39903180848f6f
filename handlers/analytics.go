package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/alghanim/agentpulse/analytics"
	"github.com/alghanim/agentpulse/models"
	"github.com/alghanim/agentpulse/store"

	"go.uber.org/zap"
)

// LoadReporter exposes the relay admission counters.
type LoadReporter interface {
	Load() (inFlight, queued int64)
}

// AnalyticsHandler serves the per-agent metric views under /api/agents/{id}.
type AnalyticsHandler struct {
	Store    *store.Store
	Pricing  analytics.Pricing
	Location *time.Location
	Load     LoadReporter
	Logger   *zap.Logger
}

// executions resolves the agent of the request and loads its executions.
// It writes the error response itself and reports ok=false on failure.
func (h *AnalyticsHandler) executions(w http.ResponseWriter, r *http.Request) (int64, []models.Execution, bool) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return 0, nil, false
	}
	if _, err := h.Store.GetAgent(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Agent not found")
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return 0, nil, false
	}
	execs, err := h.Store.ListExecutions(r.Context(), id)
	if err != nil {
		h.Logger.Error("list executions", zap.Int64("agent_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return 0, nil, false
	}
	return id, execs, true
}

// GetStats handles GET /api/agents/{id}/stats
func (h *AnalyticsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, analytics.ComputeStats(execs, h.Pricing, h.Location))
}

// GetRealtime handles GET /api/agents/{id}/stats/realtime
func (h *AnalyticsHandler) GetRealtime(w http.ResponseWriter, r *http.Request) {
	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, analytics.Timeline(execs, analytics.DefaultTimelineSize, h.Location))
}

// GetActivity handles GET /api/agents/{id}/activity
func (h *AnalyticsHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, analytics.HourlyActivity(execs, h.Location))
}

// GetPeakUsage handles GET /api/agents/{id}/peak-usage
func (h *AnalyticsHandler) GetPeakUsage(w http.ResponseWriter, r *http.Request) {
	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, analytics.PeakUsage(execs, h.Location))
}

type Dashboard struct {
	Stats       analytics.Stats      `json:"stats"`
	RecentLogs  []analytics.LogEntry `json:"recent_logs"`
	Performance Performance          `json:"performance"`
	PeakUsage   analytics.Peak       `json:"peak_usage"`
	GeneratedAt time.Time            `json:"generated_at"`
}

const dashboardLogs = 5

// GetDashboard handles GET /api/agents/{id}/dashboard. It bundles what the
// dashboard would otherwise poll from four endpoints.
func (h *AnalyticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, Dashboard{
		Stats:       analytics.ComputeStats(execs, h.Pricing, h.Location),
		RecentLogs:  analytics.RecentLogs(execs, dashboardLogs),
		Performance: h.performance(execs),
		PeakUsage:   analytics.PeakUsage(execs, h.Location),
		GeneratedAt: time.Now().UTC(),
	})
}
