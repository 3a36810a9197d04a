package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/events"
	"github.com/opensourcewtf/waaah/internal/events/bus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	// clientBuffer is the per-client send queue; a client that cannot drain
	// it is disconnected rather than allowed to stall the fan-out.
	clientBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// eventFrame is the wire form of one bus event on the WebSocket stream.
type eventFrame struct {
	Topic string     `json:"topic"`
	Event *bus.Event `json:"event"`
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool // empty means all topics
}

func (c *wsClient) wants(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

// eventHub mirrors the event bus onto WebSocket clients. It subscribes once
// per topic and fans frames out to every connected client that asked for the
// topic.
type eventHub struct {
	logger *logger.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	subs    []bus.Subscription
	closed  bool
}

func newEventHub(eventBus bus.EventBus, log *logger.Logger) (*eventHub, error) {
	h := &eventHub{
		logger:  log,
		clients: make(map[*wsClient]struct{}),
	}

	for _, topic := range events.Topics {
		topic := topic
		sub, err := eventBus.Subscribe(topic, func(_ context.Context, event *bus.Event) error {
			h.broadcast(topic, event)
			return nil
		})
		if err != nil {
			return nil, err
		}
		h.subs = append(h.subs, sub)
	}
	return h, nil
}

func (h *eventHub) broadcast(topic string, event *bus.Event) {
	payload, err := json.Marshal(eventFrame{Topic: topic, Event: event})
	if err != nil {
		h.logger.Error("failed to marshal event frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.wants(topic) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			// Slow consumer: drop the connection, not the publisher.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *eventHub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *eventHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		_ = sub.Unsubscribe()
	}
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// handleWebSocket upgrades the connection and streams bus events. An optional
// topics query parameter (comma-separated) narrows the stream.
func (s *Server) handleWebSocket(c *gin.Context) {
	topics := make(map[string]bool)
	if raw := c.Query("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if !events.Valid(t) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown topic " + t})
				return
			}
			topics[t] = true
		}
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		topics: topics,
	}
	if !s.hub.register(client) {
		_ = conn.Close()
		return
	}

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; the stream is one-way. Its job is pong
// handling and noticing the close.
func (s *Server) readPump(client *wsClient) {
	defer func() {
		s.hub.unregister(client)
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(1024)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
