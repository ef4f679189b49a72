package hub

import (
	"log/slog"
	"sync"

	"github.com/Nagababu23/collaborative-drawing-canvas/domain"
)

type room struct {
	clients map[string]domain.Connection
	mu      sync.RWMutex
}

// Hub is the membership registry. A connection belongs to at most one room;
// the drawing state of a room lives elsewhere and outlives its membership.
type Hub struct {
	rooms map[string]*room
	conns map[string]string
	mu    sync.RWMutex
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		conns: make(map[string]string),
	}
}

// Join moves conn into roomID, leaving its previous room first.
func (h *Hub) Join(conn domain.Connection, roomID string) {
	h.mu.Lock()
	if current, ok := h.conns[conn.ID()]; ok {
		if current == roomID {
			h.mu.Unlock()
			return
		}
		h.removeLocked(conn.ID(), current)
	}
	r, exists := h.rooms[roomID]
	if !exists {
		r = &room{clients: make(map[string]domain.Connection)}
		h.rooms[roomID] = r
	}
	h.conns[conn.ID()] = roomID

	r.mu.Lock()
	r.clients[conn.ID()] = conn
	count := len(r.clients)
	r.mu.Unlock()
	h.mu.Unlock()

	slog.Info("client joined", "room", roomID, "clientId", conn.ID(), "clients", count)
}

// Leave removes connID from its room and reports which room that was.
func (h *Hub) Leave(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID, ok := h.conns[connID]
	if !ok {
		return "", false
	}
	h.removeLocked(connID, roomID)
	return roomID, true
}

func (h *Hub) removeLocked(connID, roomID string) {
	delete(h.conns, connID)

	r, exists := h.rooms[roomID]
	if !exists {
		return
	}

	r.mu.Lock()
	delete(r.clients, connID)
	count := len(r.clients)
	r.mu.Unlock()

	slog.Info("client left", "room", roomID, "clientId", connID, "clients", count)

	if count == 0 {
		delete(h.rooms, roomID)
		slog.Info("room removed", "room", roomID)
	}
}

// Members returns the IDs of the connections in roomID, in no particular order.
func (h *Hub) Members(roomID string) []string {
	h.mu.RLock()
	r, exists := h.rooms[roomID]
	h.mu.RUnlock()

	if !exists {
		return []string{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) RoomOf(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roomID, ok := h.conns[connID]
	return roomID, ok
}

// Send delivers data to a single connection, wherever it is joined.
func (h *Hub) Send(connID string, data []byte) {
	h.mu.RLock()
	roomID, ok := h.conns[connID]
	var conn domain.Connection
	if ok {
		if r, exists := h.rooms[roomID]; exists {
			r.mu.RLock()
			conn = r.clients[connID]
			r.mu.RUnlock()
		}
	}
	h.mu.RUnlock()

	if conn == nil {
		return
	}
	h.deliver(conn, data)
}

// Broadcast delivers data to every member of roomID.
func (h *Hub) Broadcast(roomID string, data []byte) {
	h.BroadcastExcept(roomID, "", data)
}

// BroadcastExcept delivers data to every member of roomID other than exceptID.
func (h *Hub) BroadcastExcept(roomID, exceptID string, data []byte) {
	h.mu.RLock()
	r, exists := h.rooms[roomID]
	h.mu.RUnlock()

	if !exists {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, conn := range r.clients {
		if id == exceptID {
			continue
		}
		h.deliver(conn, data)
	}
}

// deliver never blocks. A connection that cannot keep up is closed, which
// routes it through the normal disconnect path.
func (h *Hub) deliver(conn domain.Connection, data []byte) {
	if err := conn.Send(data); err != nil {
		slog.Warn("send failed, closing connection", "clientId", conn.ID(), "error", err)
		go func(c domain.Connection) {
			c.Close()
		}(conn)
	}
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		clients += len(r.clients)
		r.mu.RUnlock()
	}
	return rooms, clients
}
