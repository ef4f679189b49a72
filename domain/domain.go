package domain

import "encoding/json"

// Inbound event types.
const (
	EventDraw       = "draw"
	EventUndo       = "undo"
	EventRedo       = "redo"
	EventClear      = "clear"
	EventCursorMove = "cursor_move"
)

// Outbound event types.
const (
	EventUserID        = "user_id"
	EventStrokeHistory = "stroke_history"
	EventStrokeAdded   = "stroke_added"
	EventCursorLeave   = "cursor_leave"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one finished freehand path. StrokeID is generated by the
// authoring client and never rewritten by the server. Color and Width are
// rendering hints the server relays verbatim.
type Stroke struct {
	StrokeID string          `json:"strokeId"`
	UserID   string          `json:"userId"`
	Color    json.RawMessage `json:"color,omitempty"`
	Width    json.RawMessage `json:"width,omitempty"`
	Points   []Point         `json:"points"`
}

// CursorInput is the sender's cursor_move payload. X and Y are required.
type CursorInput struct {
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Color    string   `json:"color"`
	Username string   `json:"username,omitempty"`
}

type CursorMove struct {
	UserID   string  `json:"userId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
	Username string  `json:"username"`
}

type CursorLeave struct {
	UserID string `json:"userId"`
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Registry tracks room membership and addresses frames to members.
type Registry interface {
	Join(conn Connection, roomID string)
	Leave(connID string) (roomID string, ok bool)
	Members(roomID string) []string
	RoomOf(connID string) (roomID string, ok bool)
	Send(connID string, data []byte)
	Broadcast(roomID string, data []byte)
	BroadcastExcept(roomID, exceptID string, data []byte)
	Stats() (rooms, clients int)
}

type MessageHandler interface {
	Connect(conn Connection, roomID string)
	Handle(conn Connection, data []byte)
	Disconnect(conn Connection)
}
