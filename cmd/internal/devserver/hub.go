package devserver

import (
	"log/slog"
	"sync"

	rtv1 "arcsync/shared/contracts/realtime/v1"
)

// Client is one connected websocket session. Send is never closed by the
// server; done signals shutdown.
type Client struct {
	SessionID string
	UserID    string
	Send      chan rtv1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient returns a client with a bounded send queue.
func NewClient(userID, sessionID string, queue int) *Client {
	if queue <= 0 {
		queue = 64
	}
	return &Client{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan rtv1.Envelope, queue),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub fans envelopes out to the connected sessions of a set of users.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[string]*Client // user -> session -> client
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[string]map[string]*Client)}
}

// Join registers c.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[string]*Client)
	}
	h.clients[c.UserID][c.SessionID] = c
	h.mu.Unlock()
	h.log.Info("devserver.ws.join", "user_id", c.UserID, "session_id", c.SessionID)
}

// Leave unregisters the session, then closes it.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	delete(h.clients[c.UserID], c.SessionID)
	if len(h.clients[c.UserID]) == 0 {
		delete(h.clients, c.UserID)
	}
	h.mu.Unlock()
	c.Close()
	h.log.Info("devserver.ws.leave", "user_id", c.UserID, "session_id", c.SessionID)
}

// Publish delivers env to every session of users. It never blocks: a full
// queue drops the envelope for that session.
func (h *Hub) Publish(users []string, env rtv1.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, u := range users {
		for _, c := range h.clients[u] {
			select {
			case <-c.Done():
				continue
			default:
			}
			select {
			case c.Send <- env:
			default:
				h.log.Warn("devserver.ws.drop", "user_id", u, "session_id", c.SessionID, "type", env.Type)
			}
		}
	}
}

// Connected returns the number of sessions of userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
