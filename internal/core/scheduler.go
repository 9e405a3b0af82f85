package core

// scheduler.go removes import previews that were never confirmed.

import (
	"context"
	"log/slog"
	"time"
)

// SweepSessions drops expired previews and returns how many were removed.
func (s *Service) SweepSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSessionSweeper sweeps expired previews every interval until ctx is
// cancelled. It runs once immediately.
func (s *Service) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("import session sweeper started", "interval", interval, "ttl", s.cfg.SessionTTL)

	s.runSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("import session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *Service) runSweep() {
	if removed := s.SweepSessions(); removed > 0 {
		slog.Info("expired import sessions removed", "count", removed)
	}
}
