package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/echocat/slf4g"
	"github.com/gorilla/websocket"

	"github.com/ayusman/lexi/internal/model"
	"github.com/ayusman/lexi/internal/session"
)

const (
	writeTimeout = 5 * time.Second
	clientBuffer = 32
)

// Event types sent over /api/transcript.
const (
	EventSnapshot   = "snapshot"
	EventText       = "text"
	EventState      = "state"
	EventStatus     = "status"
	EventVocabulary = "vocabulary"
)

// Event is one websocket message.
type Event struct {
	Type      string  `json:"type"`
	Text      *string `json:"text,omitempty"`
	State     string  `json:"state,omitempty"`
	Status    string  `json:"status,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session notifications out to websocket clients. A client that
// cannot keep up loses messages rather than slowing the session down.
type Hub struct {
	snapshot func() session.Snapshot

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub. snapshot, if not nil, provides the first message
// every new client receives.
func NewHub(snapshot func() session.Snapshot) *Hub {
	return &Hub{
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}
}

// PublishText sends the current transcript.
func (h *Hub) PublishText(text string) {
	h.broadcast(Event{Type: EventText, Text: &text})
}

// PublishState sends a session state change.
func (h *Hub) PublishState(state session.State) {
	h.broadcast(Event{Type: EventState, State: state.String()})
}

// PublishStatus sends a model loading notification.
func (h *Hub) PublishStatus(ev model.StatusEvent) {
	e := Event{Type: EventStatus, Status: ev.Status.String()}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	h.broadcast(e)
}

// PublishVocabularyChanged tells clients that stored signs changed and a
// reload is needed for them to take effect.
func (h *Hub) PublishVocabularyChanged() {
	h.broadcast(Event{Type: EventVocabulary})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Websocket upgrade failed.")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop()

	// Taken after registering so no later change can be missed.
	if h.snapshot != nil {
		snap := h.snapshot()
		c.enqueue(encode(Event{Type: EventSnapshot, Text: &snap.Text, State: snap.State.String()}))
	}

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.With("clients", n).Debug("Transcript client connected.")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) broadcast(e Event) {
	msg := encode(e)
	if msg == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

func encode(e Event) []byte {
	e.Timestamp = time.Now().UnixMilli()
	msg, err := json.Marshal(e)
	if err != nil {
		log.WithError(err).Warn("Cannot encode event.")
		return nil
	}
	return msg
}

func (c *client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		log.Debug("Transcript client too slow, dropping event.")
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			// Drain until unregister closes the channel.
			for range c.send {
			}
			return
		}
	}
}
