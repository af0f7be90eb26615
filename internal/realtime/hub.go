package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// Client is one SSE connection subscribed to a set of sessions.
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Sessions map[uuid.UUID]bool
	Outbound chan Event
	done     chan struct{}
}

// Hub fans events out to in-process subscribers, keyed by session ID.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[uuid.UUID]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "RealtimeHub"),
		subscriptions: make(map[uuid.UUID]map[*Client]bool),
	}
}

func (h *Hub) NewClient(userID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Sessions: make(map[uuid.UUID]bool),
		Outbound: make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

func (h *Hub) Subscribe(client *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionID == uuid.Nil {
		return
	}
	client.Sessions[sessionID] = true

	clients, exists := h.subscriptions[sessionID]
	if !exists {
		clients = make(map[*Client]bool)
		h.subscriptions[sessionID] = clients
	}
	clients[client] = true

	h.log.Debug("client subscribed", "client_id", client.ID, "session_id", sessionID)
}

func (h *Hub) Unsubscribe(client *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.Sessions, sessionID)
	if subMap, ok := h.subscriptions[sessionID]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(h.subscriptions, sessionID)
		}
	}
	h.log.Debug("client unsubscribed", "client_id", client.ID, "session_id", sessionID)
}

func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sid := range client.Sessions {
		if subMap, ok := h.subscriptions[sid]; ok {
			delete(subMap, client)
			if len(subMap) == 0 {
				delete(h.subscriptions, sid)
			}
		}
	}
	client.Sessions = make(map[uuid.UUID]bool)
}

// Broadcast delivers the event to every client subscribed to its
// session. Slow clients are skipped rather than blocking the hub.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ev.SessionID == uuid.Nil {
		return
	}
	clients, ok := h.subscriptions[ev.SessionID]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("dropping event; outbound buffer full", "client_id", c.ID, "type", ev.Type)
		}
	}
}

func (h *Hub) CloseClient(client *Client) {
	close(client.done)
	h.RemoveClient(client)
	close(client.Outbound)
}

// ServeHTTP streams the client's events as server-sent events until
// the request context ends or the client is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("client context done", "client_id", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.Outbound:
			raw, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("failed to marshal event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
			flusher.Flush()
		}
	}
}
