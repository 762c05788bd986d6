package core

// scheduler.go keeps the downloadable archive fresh.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// tick that finds a run in flight is skipped rather than resetting it.

import (
	"context"
	"log/slog"
	"time"
)

// StartArchiveScheduler refreshes the archive immediately and then every
// interval until ctx is cancelled. A non-positive interval disables it.
func (s *Service) StartArchiveScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("archive scheduler started", "interval", interval)

	s.refreshArchive()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("archive scheduler stopped")
			return
		case <-ticker.C:
			s.refreshArchive()
		}
	}
}

// refreshArchive starts a fresh run unless one is already in flight.
func (s *Service) refreshArchive() {
	if s.Archiver.Status() == StatusRunning {
		slog.Debug("archive refresh skipped, run in flight")
		return
	}
	s.Archiver.Reset()
	if s.Archiver.Start() {
		slog.Debug("archive refresh started")
	}
}
