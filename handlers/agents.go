package handlers

import (
	"errors"
	"net/http"

	"github.com/alghanim/agentpulse/models"
	"github.com/alghanim/agentpulse/store"
	"github.com/alghanim/agentpulse/websocket"

	"go.uber.org/zap"
)

type AgentHandler struct {
	Store  *store.Store
	Hub    *websocket.Hub
	Logger *zap.Logger
}

// GetAgents handles GET /api/agents
func (h *AgentHandler) GetAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.Logger.Error("list agents", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

// GetAgent handles GET /api/agents/{id}
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := h.Store.GetAgent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// CreateAgent handles POST /api/agents
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var in models.AgentInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	createdAt, err := in.Validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := h.Store.CreateAgent(r.Context(), in.ToAgent(createdAt))
	if err != nil {
		h.Logger.Error("create agent", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Logger.Info("agent created", zap.Int64("agent_id", agent.ID), zap.String("name", agent.Name))
	h.broadcast("agent_created", agent)
	respondJSON(w, http.StatusCreated, agent)
}

// UpdateAgent handles PUT /api/agents/{id}
func (h *AgentHandler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in models.AgentInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	createdAt, err := in.Validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := h.Store.UpdateAgent(r.Context(), id, in.ToAgent(createdAt))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.Logger.Error("update agent", zap.Int64("agent_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.broadcast("agent_updated", agent)
	respondJSON(w, http.StatusOK, agent)
}

// DeleteAgent handles DELETE /api/agents/{id}
func (h *AgentHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.Store.DeleteAgent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.Logger.Error("delete agent", zap.Int64("agent_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Logger.Info("agent deleted", zap.Int64("agent_id", id))
	h.broadcast("agent_deleted", map[string]int64{"agent_id": id})
	respondJSON(w, http.StatusOK, map[string]string{"message": "Agent deleted"})
}

func (h *AgentHandler) broadcast(event string, payload interface{}) {
	if h.Hub != nil {
		h.Hub.Broadcast(event, payload)
	}
}
