// Package ws streams a signed-in user's notifications over websocket and
// server-sent events.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/store"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	idleTimeout   = 2 * pongWait
	cleanupPeriod = 30 * time.Second
)

// Subscriber opens pubsub subscriptions; store.Cache implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (store.Subscription, error)
}

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	subscriber Subscriber
	upgrader   websocket.Upgrader
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
	mu         sync.RWMutex
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	sub    store.Subscription

	mu         sync.Mutex
	lastActive time.Time
}

type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type clientMessage struct {
	Type string `json:"type"`
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// same-origin requests carry no Origin header
		return origin == "" || set[origin]
	}
}

func NewHub(subscriber Subscriber, allowedOrigins []string, logger *zap.SugaredLogger, metrics *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:  logger,
		metrics: metrics,
	}
}

func (h *Hub) Run(ctx context.Context) {
	cleanup := time.NewTicker(cleanupPeriod)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncrementConnections(ctx)
			}
			h.logger.Debugw("Client registered", "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			h.mu.Unlock()
			h.logger.Debugw("Client unregistered", "user_id", client.userID)

		case <-cleanup.C:
			h.cleanupInactiveClients(ctx)
		}
	}
}

// drop removes client; callers hold h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	_ = client.sub.Close()
	close(client.send)
	if h.metrics != nil {
		h.metrics.DecrementConnections(context.Background())
	}
}

// Connections counts registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) cleanupInactiveClients(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for client := range h.clients {
		if client.idleSince().Before(cutoff) {
			h.drop(client)
			h.logger.Debugw("Cleaned up inactive client", "user_id", client.userID)
		}
	}
}

// HandleWebSocket upgrades an authenticated request and streams the user's
// notification channel to it.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// closed by the hub when the client goes away
	sub, err := h.subscriber.Subscribe(context.Background(), store.NotificationChannel(user.ID))
	if err != nil {
		h.logger.Errorw("Notification subscribe failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = sub.Close()
		h.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		userID:     user.ID,
		sub:        sub,
		lastActive: time.Now(),
	}
	h.register <- client

	go client.forward()
	go client.writePump()
	go client.readPump()
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// forward moves pubsub deliveries into the send buffer until the
// subscription closes.
func (c *Client) forward() {
	for msg := range c.sub.Messages() {
		data, err := json.Marshal(Message{
			Type:      "notification",
			Topic:     msg.Channel,
			Data:      json.RawMessage(msg.Payload),
			Timestamp: time.Now().Unix(),
		})
		if err != nil {
			c.hub.logger.Errorw("Failed to marshal WebSocket message", "error", err)
			continue
		}
		c.enqueue(data)
	}
}

// enqueue never blocks; a client whose buffer is full is disconnected.
func (c *Client) enqueue(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		go func() { c.hub.unregister <- c }()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorw("WebSocket error", "error", err)
			}
			return
		}
		c.touch()

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.Warnw("Invalid client message", "error", err)
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(Message{Type: "pong", Timestamp: time.Now().Unix(), Data: json.RawMessage("{}")})
			c.enqueue(pong)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
