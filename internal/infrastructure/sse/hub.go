// Package sse manages the SSE watch connections through which parties
// follow their requests' lifecycle events.
package sse

import (
	"context"
	"sync"

	"github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Hub manages watch clients keyed by client id. Broadcast targets the
// address a client authenticated as, so a party with several open
// connections receives the event on each.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*event.WatchClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*event.WatchClient),
	}
}

func (h *Hub) Register(client *event.WatchClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClient(clientID string) *event.WatchClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToAddress pushes msg to every connection authenticated as
// addr. Slow clients drop the message rather than block the lifecycle
// operation.
func (h *Hub) BroadcastToAddress(addr identity.Address, msg *event.WatchMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Address == addr {
			trySend(c, msg)
		}
	}
}

func (h *Hub) SendToClient(clientID string, msg *event.WatchMessage) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return event.ErrClientNotFound
	}
	if !trySend(c, msg) {
		return event.ErrChannelFull
	}
	return nil
}

func (h *Hub) Start(ctx context.Context) {
	_ = ctx
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *event.WatchClient, msg *event.WatchMessage) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
