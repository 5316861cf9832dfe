package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/fuomag9/notionsocial/internal/auth"
)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one open dashboard connection of a user
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte
}

type delivery struct {
	userID  string
	message []byte
}

// Hub fans events out to the connections of each user
type Hub struct {
	clients        map[string]map[*Client]bool
	deliver        chan delivery
	register       chan *Client
	unregister     chan *Client
	done           chan struct{}
	mu             sync.RWMutex
	jwtSecret      string
	allowedOrigins []string
	log            zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, allowedOrigins []string, log zerolog.Logger) *Hub {
	return &Hub{
		clients:        make(map[string]map[*Client]bool),
		deliver:        make(chan delivery, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		jwtSecret:      jwtSecret,
		allowedOrigins: originHosts(allowedOrigins),
		log:            log.With().Str("component", "websocket").Logger(),
	}
}

// originHosts turns configured origins into the host patterns the
// handshake matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

// Run processes registrations and deliveries until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conns := range h.clients {
				for client := range conns {
					close(client.Send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.UserID).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.UserID).Msg("WebSocket client disconnected")

		case d := <-h.deliver:
			h.mu.Lock()
			for client := range h.clients[d.userID] {
				select {
				case client.Send <- d.message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.UserID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	close(client.Send)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
}

// ClientCount returns the number of open connections of userID
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Publish queues an event for every connection of userID. Events are
// dropped when the queue is full.
func (h *Hub) Publish(userID, eventType string, payload any) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", eventType).Msg("Failed to encode event payload")
		return
	}
	msgJSON, err := json.Marshal(Message{Type: eventType, Payload: payloadJSON})
	if err != nil {
		h.log.Error().Err(err).Str("type", eventType).Msg("Failed to encode event")
		return
	}

	select {
	case h.deliver <- delivery{userID: userID, message: msgJSON}:
	default:
		h.log.Warn().Str("user_id", userID).Str("type", eventType).Msg("Event queue full, dropping event")
	}
}

// HandleWebSocket authenticates and upgrades a dashboard connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// browsers cannot set headers on a websocket handshake
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.TokenFromRequest(r)
	}

	userID, err := auth.Verify(token, h.jwtSecret)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket connection rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		Hub:    h,
		Send:   make(chan []byte, 64),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, message, err := c.Conn.Read(ctx)
		if err != nil {
			if !isNormalClose(err) {
				c.Hub.log.Debug().Err(err).Str("user_id", c.UserID).Msg("WebSocket read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Debug().Err(err).Msg("Failed to parse WebSocket message")
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ctx := context.Background()
	for message := range c.Send {
		if err := c.Conn.Write(ctx, websocket.MessageText, message); err != nil {
			if !isNormalClose(err) {
				c.Hub.log.Debug().Err(err).Str("user_id", c.UserID).Msg("WebSocket write failed")
			}
			return
		}
	}
	c.Conn.Close(websocket.StatusNormalClosure, "")
}

// handleMessage answers pings; dashboards send nothing else.
func (c *Client) handleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Message{
			Type:    "pong",
			Payload: json.RawMessage(`{}`),
		})
		if err := c.Conn.Write(ctx, websocket.MessageText, response); err != nil {
			c.Hub.log.Debug().Err(err).Msg("Failed to answer ping")
		}
	default:
		c.Hub.log.Debug().Str("type", msg.Type).Msg("Unknown WebSocket message type")
	}
}
