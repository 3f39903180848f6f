package handlers

import (
	"net/http"

	"github.com/alghanim/agentpulse/analytics"
	"github.com/alghanim/agentpulse/models"
)

type Performance struct {
	Curve          []analytics.CurvePoint `json:"curve"`
	ActiveRequests int64                  `json:"active_requests"`
	QueueDepth     int64                  `json:"queue_depth"`
	ResponseTime   float64                `json:"response_time"`
}

func (h *AnalyticsHandler) performance(execs []models.Execution) Performance {
	p := Performance{Curve: analytics.PerformanceCurve(execs, h.Location)}
	if h.Load != nil {
		p.ActiveRequests, p.QueueDepth = h.Load.Load()
	}
	if len(execs) > 0 {
		p.ResponseTime = execs[len(execs)-1].DurationSeconds
	}
	return p
}

// GetPerformance handles GET /api/agents/{id}/performance
func (h *AnalyticsHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.performance(execs))
}
