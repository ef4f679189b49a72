// Package board holds the authoritative drawing state of every room: the
// ordered stroke history and the room-wide redo stack.
package board

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Nagababu23/collaborative-drawing-canvas/domain"
)

// MaxStrokes bounds a room's history. Older strokes are evicted first and
// cannot be brought back by undo.
const MaxStrokes = 500

type room struct {
	mu         sync.Mutex
	history    []domain.Stroke
	redo       []domain.Stroke
	lastActive time.Time
	removed    bool
}

func (r *room) snapshot() []domain.Stroke {
	out := make([]domain.Stroke, len(r.history))
	copy(out, r.history)
	return out
}

// Manager is the only writer of room drawing state. Every operation locks
// the room it touches, so calls on the same room are serialized and calls on
// different rooms run in parallel. Returned histories are copies.
type Manager struct {
	rooms map[string]*room
	mu    sync.RWMutex
	now   func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]*room),
		now:   time.Now,
	}
}

func (m *Manager) getOrCreate(roomID string) *room {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok = m.rooms[roomID]; ok {
		return r
	}
	r = &room{
		history:    []domain.Stroke{},
		redo:       []domain.Stroke{},
		lastActive: m.now(),
	}
	m.rooms[roomID] = r
	slog.Debug("board created", "room", roomID)
	return r
}

// withRoom runs fn with the room locked and marks the room active. A room
// removed between lookup and lock is recreated, so fn never mutates an
// orphaned room.
func (m *Manager) withRoom(roomID string, fn func(r *room)) {
	m.readRoom(roomID, func(r *room) {
		r.lastActive = m.now()
		fn(r)
	})
}

// readRoom runs fn with the room locked without marking it active. Reads do
// not count as activity, so polling a room never keeps it from being swept.
func (m *Manager) readRoom(roomID string, fn func(r *room)) {
	for {
		r := m.getOrCreate(roomID)
		r.mu.Lock()
		if r.removed {
			r.mu.Unlock()
			continue
		}
		fn(r)
		r.mu.Unlock()
		return
	}
}

// AddStroke appends s to the history, discards the whole redo stack (for every
// author) and evicts the oldest strokes beyond MaxStrokes.
func (m *Manager) AddStroke(roomID string, s domain.Stroke) []domain.Stroke {
	var out []domain.Stroke
	m.withRoom(roomID, func(r *room) {
		r.history = append(r.history, s)
		clear(r.redo)
		r.redo = r.redo[:0]
		if over := len(r.history) - MaxStrokes; over > 0 {
			r.history = slices.Delete(r.history, 0, over)
		}
		out = r.snapshot()
	})
	return out
}

// UndoLastStroke moves userID's most recent stroke from the history to the
// top of the redo stack. Without a match the history is returned unchanged.
func (m *Manager) UndoLastStroke(roomID, userID string) []domain.Stroke {
	var out []domain.Stroke
	m.withRoom(roomID, func(r *room) {
		for i := len(r.history) - 1; i >= 0; i-- {
			if r.history[i].UserID != userID {
				continue
			}
			r.redo = append(r.redo, r.history[i])
			r.history = slices.Delete(r.history, i, i+1)
			break
		}
		out = r.snapshot()
	})
	return out
}

// RedoLastStroke takes userID's most recently undone stroke off the redo stack
// and appends it to the end of the history, after anything drawn since.
func (m *Manager) RedoLastStroke(roomID, userID string) []domain.Stroke {
	var out []domain.Stroke
	m.withRoom(roomID, func(r *room) {
		for i := len(r.redo) - 1; i >= 0; i-- {
			if r.redo[i].UserID != userID {
				continue
			}
			r.history = append(r.history, r.redo[i])
			r.redo = slices.Delete(r.redo, i, i+1)
			break
		}
		out = r.snapshot()
	})
	return out
}

// ClearRoom empties the history. The redo stack is left as is.
func (m *Manager) ClearRoom(roomID string) []domain.Stroke {
	var out []domain.Stroke
	m.withRoom(roomID, func(r *room) {
		r.history = []domain.Stroke{}
		out = r.snapshot()
	})
	return out
}

// Strokes returns the current history, creating an empty room on first use.
func (m *Manager) Strokes(roomID string) []domain.Stroke {
	var out []domain.Stroke
	m.readRoom(roomID, func(r *room) {
		out = r.snapshot()
	})
	return out
}

// RedoStack returns a copy of the room's redo stack, oldest undo first.
func (m *Manager) RedoStack(roomID string) []domain.Stroke {
	var out []domain.Stroke
	m.readRoom(roomID, func(r *room) {
		out = make([]domain.Stroke, len(r.redo))
		copy(out, r.redo)
	})
	return out
}

// RemoveRoom drops all state of roomID.
func (m *Manager) RemoveRoom(roomID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if ok {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	r.mu.Lock()
	r.removed = true
	r.mu.Unlock()
	slog.Info("board removed", "room", roomID)
}

// RemoveIfIdle drops roomID only if it has not been touched since cutoff.
// The check and the removal happen under the room lock.
func (m *Manager) RemoveIfIdle(roomID string, cutoff time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastActive.After(cutoff) {
		return false
	}
	r.removed = true
	delete(m.rooms, roomID)
	slog.Info("idle board removed", "room", roomID, "lastActive", r.lastActive)
	return true
}

// IdleRooms lists rooms whose last operation happened at or before cutoff.
func (m *Manager) IdleRooms(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, r := range m.rooms {
		r.mu.Lock()
		idle := !r.lastActive.After(cutoff)
		r.mu.Unlock()
		if idle {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count reports how many rooms hold drawing state.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
