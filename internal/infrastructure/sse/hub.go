// Package sse fans session state changes out to subscribed UI clients over
// server-sent events.
package sse

import (
	"errors"
	"sync"
)

// ErrChannelFull is returned when a client cannot keep up with its stream.
var ErrChannelFull = errors.New("sse: client channel full")

// ErrClientNotFound is returned when a directed send names no registered
// client.
var ErrClientNotFound = errors.New("sse: client not found")

// Message is one event on a session stream.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Client is one subscribed stream reader. MessageChan is drained by the HTTP
// handler that owns the connection.
type Client struct {
	ID          string
	SessionID   string
	MessageChan chan *Message

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient builds a client with a bounded buffer; a slow reader drops
// messages rather than blocking the machine.
func NewClient(id, sessionID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		ID:          id,
		SessionID:   sessionID,
		MessageChan: make(chan *Message, buffer),
		done:        make(chan struct{}),
	}
}

// Done is closed when the client is unregistered.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close releases the client. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub manages SSE clients keyed by client id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToSession delivers a message to every client watching a session.
func (h *Hub) BroadcastToSession(sessionID string, message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.SessionID == sessionID {
			trySend(c, message)
		}
	}
}

// SendToClient delivers a message to one client, surfacing backpressure to
// the caller instead of silently dropping the way a broadcast does.
func (h *Hub) SendToClient(clientID string, message *Message) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, message) {
		return ErrChannelFull
	}
	return nil
}

// CloseSession drops every client watching a session, e.g. when the session
// ends.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if c.SessionID == sessionID {
			c.Close()
			delete(h.clients, id)
		}
	}
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
