// Package websocket pushes committed record changes and background job
// status to connected clients.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/larder/internal/record"
)

// Message types other than record changes.
const (
	TypeBackupStatus = "backup_status"
	TypeSyncStatus   = "sync_status"
)

// Message is one notification broadcast to all clients.
type Message struct {
	Type   string   `json:"type"`
	Table  string   `json:"table,omitempty"`
	Action string   `json:"action,omitempty"`
	IDs    []string `json:"ids,omitempty"`
	Data   any      `json:"data,omitempty"`
}

// NewMessage creates a status Message carrying data.
func NewMessage(typ string, data any) Message {
	return Message{Type: typ, Data: data}
}

// ChangeMessages groups a committed change into one message per table and
// action, in the order they first appear.
func ChangeMessages(c record.Change) []Message {
	var out []Message
	index := make(map[string]int)
	for _, e := range c.Events {
		key := e.Table + "/" + string(e.Action)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Message{
				Type:   fmt.Sprintf("%s_%s", e.Table, e.Action),
				Table:  e.Table,
				Action: string(e.Action),
			})
		}
		out[i].IDs = append(out[i].IDs, e.ID)
	}
	return out
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// PublishChange broadcasts a committed change. It has the signature of a
// record store commit hook.
func (h *Hub) PublishChange(c record.Change) {
	for _, msg := range ChangeMessages(c) {
		h.Broadcast(msg)
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow client
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every client. Their connections close with StatusGoingAway.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}
