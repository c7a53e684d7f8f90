package ui

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lz-215/Dream-Dictionary/internal/session"
	log "github.com/sirupsen/logrus"
)

// Event types pushed to websocket subscribers.
const (
	EventSession     = "session"
	EventLoginError  = "login-error"
	EventUsagePrompt = "usage-prompt"
	EventAddress     = "address"
)

// Event is the JSON envelope broadcast to subscribers. Exactly one of the
// payload fields is meaningful per type.
type Event struct {
	Type    string           `json:"type"`
	Session *session.Session `json:"session,omitempty"`
	Message string           `json:"message,omitempty"`
	Count   int              `json:"count,omitempty"`
	URL     string           `json:"url,omitempty"`
	At      time.Time        `json:"at"`
}

// writeWait bounds how long a slow subscriber may block a broadcast.
const writeWait = 5 * time.Second

// Hub fans reconcile events out to websocket subscribers. The web page is
// the intended consumer: it mirrors the sign-in affordances from these
// events instead of polling the session endpoint.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
	upgrader    websocket.Upgrader
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The page is served from the production host while the
			// panel listens on loopback, so origins never match.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and keeps the connection subscribed until the
// peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.subscribers[conn] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	log.WithField("subscribers", count).Debug("events subscriber connected")

	// Drain incoming frames; the hub is push-only and only needs to
	// notice the close.
	go func() {
		for {
			if _, _, errRead := conn.ReadMessage(); errRead != nil {
				h.drop(conn)
				return
			}
		}
	}()
	return nil
}

// SessionChanged implements Reconciler.
func (h *Hub) SessionChanged(sess *session.Session) {
	h.broadcast(Event{Type: EventSession, Session: sess})
}

// ShowLoginError implements Reconciler.
func (h *Hub) ShowLoginError(message string) {
	h.broadcast(Event{Type: EventLoginError, Message: message})
}

// ShowUsagePrompt implements Reconciler.
func (h *Hub) ShowUsagePrompt(count int) {
	h.broadcast(Event{Type: EventUsagePrompt, Count: count})
}

// AddressChanged implements Reconciler.
func (h *Hub) AddressChanged(cleanURL string) {
	h.broadcast(Event{Type: EventAddress, URL: cleanURL})
}

func (h *Hub) broadcast(evt Event) {
	evt.At = time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.subscribers {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(evt); err != nil {
			log.WithField("error", err).Debug("dropping events subscriber")
			delete(h.subscribers, conn)
			_ = conn.Close()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[conn]; ok {
		delete(h.subscribers, conn)
		_ = conn.Close()
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.subscribers {
		_ = conn.Close()
	}
	h.subscribers = make(map[*websocket.Conn]struct{})
}
