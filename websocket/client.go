package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one dashboard connection.
type Client struct {
	ID            string
	Hub           *Hub
	Conn          *websocket.Conn
	Send          chan []byte
	Subscriptions map[string]bool

	mu sync.RWMutex
}

// request is what clients send to manage their subscriptions.
type request struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:            id,
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan []byte, sendBuffer),
		Subscriptions: make(map[string]bool),
	}
}

func (c *Client) Subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[topic] || c.Subscriptions[TopicAll]
}

func (c *Client) setSubscription(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.Subscriptions[topic] = true
	} else {
		delete(c.Subscriptions, topic)
	}
}

// ReadPump handles subscription requests until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("ws read error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
		var req request
		if err := json.Unmarshal(raw, &req); err != nil || req.Topic == "" {
			c.reply(Event{Event: "error", Data: "expected {\"action\":\"subscribe\",\"topic\":\"agent:<id>\"}"})
			continue
		}
		switch req.Action {
		case "subscribe":
			c.setSubscription(req.Topic, true)
			c.reply(Event{Event: "subscribed", Topic: req.Topic})
		case "unsubscribe":
			c.setSubscription(req.Topic, false)
			c.reply(Event{Event: "unsubscribed", Topic: req.Topic})
		default:
			c.reply(Event{Event: "error", Topic: req.Topic, Data: "unknown action " + req.Action})
		}
	}
}

// reply queues a frame for this client only, through the hub.
func (c *Client) reply(e Event) {
	e.Time = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	c.Hub.enqueue(envelope{to: c, data: data})
}

// WritePump drains Send and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
