package protocol

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Nagababu23/collaborative-drawing-canvas/domain"
	"github.com/Nagababu23/collaborative-drawing-canvas/metrics"
)

const guestName = "Guest"

// Boards is the authority over room drawing state.
type Boards interface {
	AddStroke(roomID string, s domain.Stroke) []domain.Stroke
	UndoLastStroke(roomID, userID string) []domain.Stroke
	RedoLastStroke(roomID, userID string) []domain.Stroke
	ClearRoom(roomID string) []domain.Stroke
	Strokes(roomID string) []domain.Stroke
}

type Option func(*Handler)

// WithCursorLimit caps cursor_move relays per connection. Frames over the
// limit are dropped; a non-positive rate disables the limit.
func WithCursorLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		h.cursorRate = rate.Limit(perSecond)
		h.cursorBurst = burst
	}
}

// Handler turns transport events into board operations and fans the results
// out to the room. Mutations of one room and the frames they produce are
// serialized, so every member sees snapshots in the order they were taken.
type Handler struct {
	registry domain.Registry
	boards   Boards
	locks    *roomLocks

	cursorRate  rate.Limit
	cursorBurst int
	limiters    map[string]*rate.Limiter
	limitersMu  sync.Mutex
}

func NewHandler(r domain.Registry, b Boards, opts ...Option) *Handler {
	h := &Handler{
		registry: r,
		boards:   b,
		locks:    newRoomLocks(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect sends the connection its identity, joins it to roomID and replays
// the room's history to it alone.
func (h *Handler) Connect(conn domain.Connection, roomID string) {
	if frame, err := encode(domain.EventUserID, conn.ID()); err == nil {
		conn.Send(frame)
	}

	unlock := h.locks.lock(roomID)
	h.registry.Join(conn, roomID)
	history := h.boards.Strokes(roomID)
	if frame, err := encode(domain.EventStrokeHistory, history); err == nil {
		h.registry.Send(conn.ID(), frame)
		metrics.SnapshotSent(len(history))
	}
	unlock()

	if h.cursorRate > 0 {
		h.limitersMu.Lock()
		h.limiters[conn.ID()] = rate.NewLimiter(h.cursorRate, h.cursorBurst)
		h.limitersMu.Unlock()
	}

	metrics.ClientConnected()
	slog.Info("user connected", "clientId", conn.ID(), "room", roomID, "strokes", len(history))
}

// Disconnect removes the connection from its room and clears the room's
// board for everyone who is left.
func (h *Handler) Disconnect(conn domain.Connection) {
	roomID, ok := h.registry.RoomOf(conn.ID())
	if !ok {
		return
	}

	unlock := h.locks.lock(roomID)
	h.registry.Leave(conn.ID())
	history := h.boards.ClearRoom(roomID)
	if len(h.registry.Members(roomID)) > 0 {
		h.broadcastHistory(roomID, history)
	}
	if frame, err := encode(domain.EventCursorLeave, domain.CursorLeave{UserID: conn.ID()}); err == nil {
		h.registry.BroadcastExcept(roomID, conn.ID(), frame)
	}
	unlock()

	h.limitersMu.Lock()
	delete(h.limiters, conn.ID())
	h.limitersMu.Unlock()

	metrics.ClientDisconnected()
	slog.Info("user disconnected", "clientId", conn.ID(), "room", roomID)
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		metrics.FrameDropped("invalid_json")
		return
	}

	roomID, ok := h.registry.RoomOf(conn.ID())
	if !ok {
		slog.Debug("message from unjoined connection", "clientId", conn.ID(), "type", msg.Type)
		metrics.FrameDropped("not_joined")
		return
	}

	switch msg.Type {
	case domain.EventDraw:
		h.draw(conn, roomID, msg.Data)
	case domain.EventUndo:
		h.mutate(roomID, func() []domain.Stroke { return h.boards.UndoLastStroke(roomID, conn.ID()) })
	case domain.EventRedo:
		h.mutate(roomID, func() []domain.Stroke { return h.boards.RedoLastStroke(roomID, conn.ID()) })
	case domain.EventClear:
		h.mutate(roomID, func() []domain.Stroke { return h.boards.ClearRoom(roomID) })
	case domain.EventCursorMove:
		h.cursorMove(conn, roomID, msg.Data)
	default:
		slog.Warn("unknown event", "clientId", conn.ID(), "type", msg.Type)
		metrics.FrameDropped("unknown_event")
		return
	}
	metrics.EventHandled(msg.Type)
}

func (h *Handler) draw(conn domain.Connection, roomID string, data json.RawMessage) {
	var stroke domain.Stroke
	if err := json.Unmarshal(data, &stroke); err != nil || !valid(stroke) {
		slog.Debug("dropping malformed stroke", "clientId", conn.ID(), "error", err)
		metrics.FrameDropped("malformed_stroke")
		return
	}

	frame, err := encode(domain.EventStrokeAdded, stroke)
	if err != nil {
		slog.Warn("marshal error", "clientId", conn.ID(), "error", err)
		return
	}

	unlock := h.locks.lock(roomID)
	defer unlock()
	history := h.boards.AddStroke(roomID, stroke)
	h.registry.Broadcast(roomID, frame)
	slog.Debug("stroke added", "room", roomID, "strokeId", stroke.StrokeID, "strokes", len(history))
}

// valid reports whether s has the fields every client relies on. Points may
// be empty but must be present.
func valid(s domain.Stroke) bool {
	return s.StrokeID != "" && s.UserID != "" && s.Points != nil
}

// mutate applies op and broadcasts the resulting history as one step.
func (h *Handler) mutate(roomID string, op func() []domain.Stroke) {
	unlock := h.locks.lock(roomID)
	defer unlock()
	h.broadcastHistory(roomID, op())
}

func (h *Handler) broadcastHistory(roomID string, history []domain.Stroke) {
	frame, err := encode(domain.EventStrokeHistory, history)
	if err != nil {
		slog.Warn("marshal error", "room", roomID, "error", err)
		return
	}
	h.registry.Broadcast(roomID, frame)
	metrics.SnapshotSent(len(history))
}

func (h *Handler) cursorMove(conn domain.Connection, roomID string, data json.RawMessage) {
	var in domain.CursorInput
	if err := json.Unmarshal(data, &in); err != nil || in.X == nil || in.Y == nil {
		slog.Debug("dropping malformed cursor", "clientId", conn.ID(), "error", err)
		metrics.FrameDropped("malformed_cursor")
		return
	}
	if !h.allowCursor(conn.ID()) {
		metrics.FrameDropped("cursor_rate")
		return
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = guestName
	}
	frame, err := encode(domain.EventCursorMove, domain.CursorMove{
		UserID:   conn.ID(),
		X:        *in.X,
		Y:        *in.Y,
		Color:    in.Color,
		Username: username,
	})
	if err != nil {
		return
	}
	h.registry.BroadcastExcept(roomID, conn.ID(), frame)
}

func (h *Handler) allowCursor(connID string) bool {
	h.limitersMu.Lock()
	limiter, ok := h.limiters[connID]
	h.limitersMu.Unlock()
	return !ok || limiter.Allow()
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(domain.Message{Type: event, Data: data})
}
