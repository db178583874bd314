// Package livefeed streams replies to browser clients over websockets.
package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/compose"
	"github.com/lexiqai/voice-reader/internal/voice"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// A nil CheckOrigin rejects cross-origin browser handshakes
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Message is the JSON frame sent for each reply. It carries no chat
// identifiers: ID is fresh for every frame and the destination is dropped.
type Message struct {
	ID       string               `json:"id"`
	Composed *voice.ComposedReply `json:"composed,omitempty"`
	Notice   *voice.Notice        `json:"notice,omitempty"`
	Text     string               `json:"text"`
	SentAt   time.Time            `json:"sent_at"`
}

func newMessage(reply voice.Reply) Message {
	return Message{
		ID:       uuid.NewString(),
		Composed: reply.Composed,
		Notice:   reply.Notice,
		Text:     compose.Plain(reply),
		SentAt:   time.Now().UTC(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans replies out to every connected client. Clients that fall
// behind are disconnected rather than slowing delivery down.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  zerolog.Logger
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "livefeed").Logger(),
	}
}

// Handler upgrades the request and keeps the client subscribed until it disconnects
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
		h.register(c)
		go h.writePump(c)

		// Drain client frames so close and ping control messages are handled
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("WebSocket read error")
				}
				break
			}
		}
		h.unregister(c)
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket write failed")
			h.unregister(c)
			// Keep draining until unregister closes the channel
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info().Int("clients", h.Clients()).Msg("Live feed client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Deliver broadcasts the reply. It never blocks on a client.
func (h *Hub) Deliver(ctx context.Context, reply voice.Reply) error {
	data, err := json.Marshal(newMessage(reply))
	if err != nil {
		return voice.E(voice.KindDelivery, "livefeed.broadcast", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Msg("Dropping slow live feed client")
			delete(h.clients, c)
			close(c.send)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
