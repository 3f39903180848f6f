package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/alghanim/agentpulse/models"
	"github.com/alghanim/agentpulse/relay"
	"github.com/alghanim/agentpulse/store"

	"go.uber.org/zap"
)

// AgentFinder resolves an agent by name.
type AgentFinder interface {
	FindAgentByName(ctx context.Context, name string) (models.Agent, error)
}

// ChatHandler serves the chat widget: messages are relayed upstream on
// behalf of an agent. DefaultAgent, when set, names the agent behind
// POST /api/chat and takes precedence over DefaultAgentID.
type ChatHandler struct {
	Relay          *relay.Relay
	Agents         AgentFinder
	DefaultAgent   string
	DefaultAgentID int64
	Logger         *zap.Logger
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/agents/{id}/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.send(w, r, id)
}

// ChatDefault handles POST /api/chat for the configured default agent.
func (h *ChatHandler) ChatDefault(w http.ResponseWriter, r *http.Request) {
	if h.DefaultAgent == "" || h.Agents == nil {
		h.send(w, r, h.DefaultAgentID)
		return
	}
	agent, err := h.Agents.FindAgentByName(r.Context(), h.DefaultAgent)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.Logger.Error("resolve default agent", zap.String("name", h.DefaultAgent), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.send(w, r, agent.ID)
}

func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request, agentID int64) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	reply, err := h.Relay.Chat(r.Context(), agentID, req.Message)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, reply)
	case errors.Is(err, relay.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "message required")
	case errors.Is(err, relay.ErrAgentNotFound):
		respondError(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, relay.ErrUpstream), errors.Is(err, relay.ErrInvalidResponse):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		h.Logger.Debug("chat client went away", zap.Int64("agent_id", agentID))
	default:
		h.Logger.Error("chat failed", zap.Int64("agent_id", agentID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// ClearHistory handles DELETE /api/agents/{id}/chat/history
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Relay.ClearHistory(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "History cleared"})
}
