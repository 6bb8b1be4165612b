package ws

import (
	"sync"

	"composer/backend/internal/cache"
	"composer/backend/internal/collab"
)

type Hub struct {
	// presence is optional (nil without redis)
	presence cache.PresenceCache
	mu       sync.RWMutex
	// docID -> connections; one user may hold several (tabs, devices)
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// Size is the number of connections in a room.
func (h *Hub) Size(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// Notify is a collab.Notifier: it broadcasts every applied mutation to the
// room, skipping the connection that issued it (that one gets an ack).
// The read lock is held while enqueueing so Leave cannot race a send.
func (h *Hub) Notify(docID string, a collab.Applied) {
	msg := broadcastMessage(docID, a)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		if a.ClientID != "" && c.id == a.ClientID {
			continue
		}
		c.Enqueue(msg)
	}
}

func (h *Hub) BroadcastPresence(docID string, members []cache.PresenceMember) {
	msg := ServerMessage{Type: "presence", DocID: docID, Members: members}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		c.Enqueue(msg)
	}
}
