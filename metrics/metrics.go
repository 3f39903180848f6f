// Package metrics exposes the Prometheus collectors of AgentPulse. Every
// method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeInvalid  = "invalid"
	OutcomeCanceled = "canceled"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	relayRequests *prometheus.CounterVec
	relayDuration prometheus.Histogram
	relayInFlight prometheus.Gauge
	relayQueued   prometheus.Gauge
	wsClients     prometheus.Gauge
}

// New builds the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpulse_http_requests_total", Help: "HTTP requests served."},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentpulse_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		relayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpulse_relay_requests_total", Help: "Chat relay calls by outcome."},
			[]string{"outcome"},
		),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentpulse_relay_duration_seconds",
			Help:    "Upstream completion latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13},
		}),
		relayInFlight: prometheus.NewGauge(prometheus.GaugeOpts{Name: "agentpulse_relay_in_flight", Help: "Completions currently running."}),
		relayQueued:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "agentpulse_relay_queued", Help: "Chat requests waiting for a relay slot."}),
		wsClients:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "agentpulse_ws_clients", Help: "Connected WebSocket clients."}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.relayRequests, m.relayDuration, m.relayInFlight, m.relayQueued,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveRelay(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.relayRequests.WithLabelValues(outcome).Inc()
	m.relayDuration.Observe(d.Seconds())
}

func (m *Metrics) SetRelayLoad(inFlight, queued int64) {
	if m == nil {
		return
	}
	m.relayInFlight.Set(float64(inFlight))
	m.relayQueued.Set(float64(queued))
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
