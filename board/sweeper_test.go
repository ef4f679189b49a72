package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeOccupancy struct {
	members map[string][]string
	mu      sync.Mutex
}

func (f *fakeOccupancy) Members(roomID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[roomID]
}

func TestSweeper_Sweep(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	m := NewManager()
	m.now = func() time.Time { return clock }

	m.Strokes("empty-idle")
	m.Strokes("occupied-idle")
	clock = start.Add(9 * time.Minute)
	m.Strokes("empty-recent")

	occ := &fakeOccupancy{members: map[string][]string{"occupied-idle": {"c1"}}}
	s := NewSweeper(m, occ, 5*time.Minute)

	removed := s.Sweep(start.Add(10 * time.Minute))

	assert.Equal(t, []string{"empty-idle"}, removed)
	assert.Equal(t, 2, m.Count())
}

func TestSweeper_MinimumInterval(t *testing.T) {
	s := NewSweeper(NewManager(), &fakeOccupancy{}, 100*time.Millisecond)
	assert.Equal(t, minSweepInterval, s.interval)

	s = NewSweeper(NewManager(), &fakeOccupancy{}, 10*time.Minute)
	assert.Equal(t, 5*time.Minute, s.interval)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	s := NewSweeper(NewManager(), &fakeOccupancy{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
