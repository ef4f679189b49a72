package hub

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	received [][]byte
	closed   bool
	mu       sync.Mutex
	sendErr  error
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func TestHub_JoinAndMembers(t *testing.T) {
	h := New()
	h.Join(&mockConn{id: "c1"}, "r1")
	h.Join(&mockConn{id: "c2"}, "r1")
	h.Join(&mockConn{id: "c3"}, "r2")

	assert.Equal(t, []string{"c1", "c2"}, sorted(h.Members("r1")))
	assert.Equal(t, []string{"c3"}, h.Members("r2"))
	assert.Empty(t, h.Members("unknown"))
	assert.NotNil(t, h.Members("unknown"))

	room, ok := h.RoomOf("c2")
	require.True(t, ok)
	assert.Equal(t, "r1", room)

	_, ok = h.RoomOf("nobody")
	assert.False(t, ok)
}

func TestHub_JoinSwitchesRoom(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1"}

	h.Join(conn, "r1")
	h.Join(conn, "r2")

	room, ok := h.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "r2", room)
	assert.Empty(t, h.Members("r1"))
	assert.Equal(t, []string{"c1"}, h.Members("r2"))

	rooms, clients := h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, clients)
}

func TestHub_JoinSameRoomIsIdempotent(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1"}

	h.Join(conn, "r1")
	h.Join(conn, "r1")

	assert.Equal(t, []string{"c1"}, h.Members("r1"))
	_, clients := h.Stats()
	assert.Equal(t, 1, clients)
}

func TestHub_Leave(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*Hub)
		leave    string
		wantRoom string
		wantOK   bool
	}{
		{
			name:     "member leaves",
			setup:    func(h *Hub) { h.Join(&mockConn{id: "c1"}, "r1") },
			leave:    "c1",
			wantRoom: "r1",
			wantOK:   true,
		},
		{
			name:   "unknown connection",
			setup:  func(h *Hub) {},
			leave:  "ghost",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			room, ok := h.Leave(tt.leave)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRoom, room)
			_, stillJoined := h.RoomOf(tt.leave)
			assert.False(t, stillJoined)
		})
	}
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		except       string
		wantReceived map[string]int
	}{
		{
			name:         "all members including sender",
			except:       "",
			wantReceived: map[string]int{"sender": 1, "recv1": 1, "other": 0},
		},
		{
			name:         "sender excluded",
			except:       "sender",
			wantReceived: map[string]int{"sender": 0, "recv1": 1, "other": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			conns := map[string]*mockConn{
				"sender": {id: "sender"},
				"recv1":  {id: "recv1"},
				"other":  {id: "other"},
			}
			h.Join(conns["sender"], "room1")
			h.Join(conns["recv1"], "room1")
			h.Join(conns["other"], "room2")

			h.BroadcastExcept("room1", tt.except, []byte("test message"))

			for id, want := range tt.wantReceived {
				assert.Len(t, conns[id].getReceived(), want, "receiver %s", id)
			}
		})
	}
}

func TestHub_BroadcastUnknownRoom(t *testing.T) {
	h := New()
	h.Broadcast("missing", []byte("x"))
}

func TestHub_Send(t *testing.T) {
	h := New()
	c1 := &mockConn{id: "c1"}
	c2 := &mockConn{id: "c2"}
	h.Join(c1, "r1")
	h.Join(c2, "r1")

	h.Send("c1", []byte("hello"))
	h.Send("ghost", []byte("dropped"))

	require.Len(t, c1.getReceived(), 1)
	assert.Equal(t, "hello", string(c1.getReceived()[0]))
	assert.Empty(t, c2.getReceived())
}

func TestHub_FailedSendClosesConnection(t *testing.T) {
	h := New()
	slow := &mockConn{id: "slow", sendErr: errors.New("queue full")}
	h.Join(slow, "r1")

	h.Broadcast("r1", []byte("x"))

	assert.Eventually(t, slow.isClosed, time.Second, 10*time.Millisecond)
}

func TestHub_Stats(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Hub)
		wantRooms   int
		wantClients int
	}{
		{
			name:        "empty hub",
			setup:       func(h *Hub) {},
			wantRooms:   0,
			wantClients: 0,
		},
		{
			name: "one room one client",
			setup: func(h *Hub) {
				h.Join(&mockConn{id: "c1"}, "r1")
			},
			wantRooms:   1,
			wantClients: 1,
		},
		{
			name: "multiple rooms",
			setup: func(h *Hub) {
				h.Join(&mockConn{id: "c1"}, "r1")
				h.Join(&mockConn{id: "c2"}, "r1")
				h.Join(&mockConn{id: "c3"}, "r2")
			},
			wantRooms:   2,
			wantClients: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			rooms, clients := h.Stats()

			assert.Equal(t, tt.wantRooms, rooms)
			assert.Equal(t, tt.wantClients, clients)
		})
	}
}

func TestHub_RoomCleanup(t *testing.T) {
	h := New()
	h.Join(&mockConn{id: "c1"}, "r1")
	rooms, _ := h.Stats()
	require.Equal(t, 1, rooms)

	h.Leave("c1")
	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}
