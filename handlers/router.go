package handlers

import (
	"net/http"

	"github.com/alghanim/agentpulse/analytics"
	"github.com/alghanim/agentpulse/config"
	"github.com/alghanim/agentpulse/metrics"
	"github.com/alghanim/agentpulse/relay"
	"github.com/alghanim/agentpulse/store"
	"github.com/alghanim/agentpulse/websocket"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Deps are the services the HTTP API is built on.
type Deps struct {
	Config  *config.Config
	Store   *store.Store
	Relay   *relay.Relay
	Hub     *websocket.Hub
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// PricingFrom converts the analytics settings.
func PricingFrom(cfg config.AnalyticsConfig) analytics.Pricing {
	return analytics.Pricing{TokensPerExecution: cfg.TokensPerExecution, CostPerToken: cfg.CostPerToken}
}

// NewRouter wires every route behind CORS.
func NewRouter(d Deps) (http.Handler, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config

	authHandler, err := NewAuthHandler(cfg.Auth, logger.Named("auth"))
	if err != nil {
		return nil, err
	}
	agentHandler := &AgentHandler{Store: d.Store, Hub: d.Hub, Logger: logger}
	analyticsHandler := &AnalyticsHandler{
		Store:    d.Store,
		Pricing:  PricingFrom(cfg.Analytics),
		Location: cfg.Analytics.Location(),
		Logger:   logger,
	}
	if d.Relay != nil {
		analyticsHandler.Load = d.Relay
	}
	chatHandler := &ChatHandler{
		Relay:          d.Relay,
		Agents:         d.Store,
		DefaultAgent:   cfg.Relay.DefaultAgent,
		DefaultAgentID: cfg.Relay.DefaultAgentID,
		Logger:         logger.Named("chat"),
	}
	healthHandler := &HealthHandler{DB: d.Store, Logger: logger}

	router := mux.NewRouter()
	router.Use(Instrument(d.Metrics, logger.Named("http")))

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authHandler.RequireAuth)

	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST")
	api.HandleFunc("/auth/me", authHandler.Me).Methods("GET")

	api.HandleFunc("/agents", agentHandler.GetAgents).Methods("GET")
	api.HandleFunc("/agents", agentHandler.CreateAgent).Methods("POST")
	api.HandleFunc("/agents/{id}", agentHandler.GetAgent).Methods("GET")
	api.HandleFunc("/agents/{id}", agentHandler.UpdateAgent).Methods("PUT")
	api.HandleFunc("/agents/{id}", agentHandler.DeleteAgent).Methods("DELETE")

	api.HandleFunc("/agents/{id}/stats", analyticsHandler.GetStats).Methods("GET")
	api.HandleFunc("/agents/{id}/stats/realtime", analyticsHandler.GetRealtime).Methods("GET")
	api.HandleFunc("/agents/{id}/logs", analyticsHandler.GetLogs).Methods("GET")
	api.HandleFunc("/agents/{id}/activity", analyticsHandler.GetActivity).Methods("GET")
	api.HandleFunc("/agents/{id}/performance", analyticsHandler.GetPerformance).Methods("GET")
	api.HandleFunc("/agents/{id}/peak-usage", analyticsHandler.GetPeakUsage).Methods("GET")
	api.HandleFunc("/agents/{id}/dashboard", analyticsHandler.GetDashboard).Methods("GET")

	if d.Relay != nil {
		api.HandleFunc("/chat", chatHandler.ChatDefault).Methods("POST")
		api.HandleFunc("/agents/{id}/chat", chatHandler.Chat).Methods("POST")
		api.HandleFunc("/agents/{id}/chat/history", chatHandler.ClearHistory).Methods("DELETE")
	}

	if d.Hub != nil {
		streamHandler := NewStreamHandler(d.Hub, cfg.Server.AllowedOrigins, logger.Named("ws"))
		router.HandleFunc("/ws/stream", streamHandler.Serve)
	}
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/ready", healthHandler.Ready).Methods("GET")
	router.Handle("/metrics", d.Metrics.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return corsHandler.Handler(router), nil
}
