package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/alghanim/agentpulse/analytics"
)

// GetLogs handles GET /api/agents/{id}/logs?limit=&order=asc|desc
//
// Without parameters every execution is returned oldest first.
func (h *AnalyticsHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = l
	}
	newestFirst := false
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		newestFirst = true
	default:
		respondError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	_, execs, ok := h.executions(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, analytics.Logs(execs, limit, newestFirst))
}
