// Package websocket pushes live agent events to dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/alghanim/agentpulse/metrics"

	"go.uber.org/zap"
)

// TopicAll subscribes a client to every topic.
const TopicAll = "*"

// Event is the frame written to clients.
type Event struct {
	Event string      `json:"event"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Time  time.Time   `json:"time"`
}

type envelope struct {
	to    *Client
	topic string
	data  []byte
}

// Hub tracks connected clients and fans events out to them. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	outbound   chan envelope
	done       chan struct{}
	count      atomic.Int64

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan envelope, 256),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.Send)
				delete(h.clients, c)
			}
			h.setCount()
			return
		case c := <-h.register:
			h.clients[c] = true
			h.setCount()
			h.logger.Debug("ws client connected", zap.String("client", c.ID), zap.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			h.drop(c)
		case env := <-h.outbound:
			if env.to != nil {
				if h.clients[env.to] {
					select {
					case env.to.Send <- env.data:
					default:
					}
				}
				continue
			}
			for c := range h.clients {
				if env.topic != "" && !c.Subscribed(env.topic) {
					continue
				}
				select {
				case c.Send <- env.data:
				default:
					h.logger.Warn("dropping slow ws client", zap.String("client", c.ID))
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
	h.setCount()
	h.logger.Debug("ws client disconnected", zap.String("client", c.ID), zap.Int("clients", len(h.clients)))
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	h.metrics.SetWSClients(len(h.clients))
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.Send)
	}
}

func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends an event to every client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	h.Publish("", event, payload)
}

// Publish sends an event to the clients subscribed to topic. Events are
// dropped when the hub is backed up or stopped.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(Event{Event: event, Topic: topic, Data: payload, Time: time.Now().UTC()})
	if err != nil {
		h.logger.Error("marshal ws event", zap.String("event", event), zap.Error(err))
		return
	}
	h.enqueue(envelope{topic: topic, data: data})
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.outbound <- env:
	case <-h.done:
	default:
		h.logger.Warn("ws hub backed up, event dropped", zap.String("topic", env.topic))
	}
}
