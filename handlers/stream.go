package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alghanim/agentpulse/analytics"
	"github.com/alghanim/agentpulse/models"
	"github.com/alghanim/agentpulse/store"
	"github.com/alghanim/agentpulse/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventStatsUpdated is pushed on an agent topic after each execution.
const EventStatsUpdated = "stats_updated"

// AgentTopic is the topic carrying the live events of one agent.
func AgentTopic(id int64) string {
	return fmt.Sprintf("agent:%d", id)
}

type StreamHandler struct {
	Hub      *websocket.Hub
	Logger   *zap.Logger
	upgrader ws.Upgrader
}

func NewStreamHandler(hub *websocket.Hub, allowedOrigins []string, logger *zap.Logger) *StreamHandler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return &StreamHandler{
		Hub:    hub,
		Logger: logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// Serve handles GET /ws/stream
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := websocket.NewClient("client-"+uuid.NewString(), h.Hub, conn)
	h.Hub.RegisterClient(client)
	go client.WritePump()
	go client.ReadPump()
}

// LivePublisher recomputes an agent's stats after each recorded execution
// and pushes them to the agent topic.
type LivePublisher struct {
	Store    *store.Store
	Hub      *websocket.Hub
	Pricing  analytics.Pricing
	Location *time.Location
	Logger   *zap.Logger
}

func (p *LivePublisher) ExecutionRecorded(ctx context.Context, e models.Execution) {
	execs, err := p.Store.ListExecutions(ctx, e.AgentID)
	if err != nil {
		p.Logger.Warn("live stats skipped", zap.Int64("agent_id", e.AgentID), zap.Error(err))
		return
	}
	p.Hub.Publish(AgentTopic(e.AgentID), EventStatsUpdated, map[string]interface{}{
		"agent_id":  e.AgentID,
		"stats":     analytics.ComputeStats(execs, p.Pricing, p.Location),
		"execution": e,
	})
}
