package board

import (
	"context"
	"log/slog"
	"time"
)

const minSweepInterval = time.Second

// Occupancy reports the connections currently joined to a room.
type Occupancy interface {
	Members(roomID string) []string
}

// Sweeper reclaims drawing state of rooms that have had no members and no
// activity for longer than the TTL. Membership teardown never touches board
// state, so without it abandoned rooms stay in memory forever.
type Sweeper struct {
	manager   *Manager
	occupancy Occupancy
	ttl       time.Duration
	interval  time.Duration
}

func NewSweeper(m *Manager, occ Occupancy, ttl time.Duration) *Sweeper {
	interval := ttl / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return &Sweeper{
		manager:   m,
		occupancy: occ,
		ttl:       ttl,
		interval:  interval,
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("board sweeper started", "ttl", s.ttl, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("board sweeper stopped")
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now); len(removed) > 0 {
				slog.Debug("sweep finished", "removed", removed)
			}
		}
	}
}

// Sweep removes every idle, member-less room and returns their IDs.
func (s *Sweeper) Sweep(now time.Time) []string {
	cutoff := now.Add(-s.ttl)

	var removed []string
	for _, id := range s.manager.IdleRooms(cutoff) {
		if len(s.occupancy.Members(id)) > 0 {
			continue
		}
		if s.manager.RemoveIfIdle(id, cutoff) {
			removed = append(removed, id)
		}
	}
	return removed
}
