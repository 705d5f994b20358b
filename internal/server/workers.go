package server

import (
	"context"
	"time"
)

// StartWorkers launches all background goroutines. Call with a cancellable
// context for graceful shutdown.
func (s *Server) StartWorkers(ctx context.Context) {
	go s.runSessionSweep(ctx)
	go s.runOrphanSweep(ctx)
	go s.runLimiterCleanup(ctx)
}

// --- Session Sweep Worker ---

// runSessionSweep periodically drops expired sessions.
func (s *Server) runSessionSweep(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.SessionSweepInterval):
			if n := s.auth.SweepExpired(); n > 0 {
				s.log.Info("swept expired sessions", "worker", "sessions", "count", n)
			}
		}
	}
}

// --- Orphan Sweep Worker ---

// runOrphanSweep periodically removes upload files that no photo row refers
// to, left behind when the process died between writing a file and
// inserting its row.
func (s *Server) runOrphanSweep(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.OrphanSweepInterval):
			s.sweepOrphans(ctx)
		}
	}
}

func (s *Server) sweepOrphans(ctx context.Context) int {
	n, err := s.photos.SweepOrphans(ctx, s.opts.OrphanGrace)
	if err != nil && ctx.Err() == nil {
		s.log.Error("sweep orphan files", "worker", "orphans", "error", err)
	}
	if n > 0 {
		s.log.Info("removed orphan files", "worker", "orphans", "count", n)
	}
	return n
}

// --- Rate Limiter Cleanup Worker ---

// runLimiterCleanup drops idle rate limiter buckets every minute.
func (s *Server) runLimiterCleanup(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Minute):
			s.loginLimiter.Cleanup()
			s.uploadLimiter.Cleanup()
		}
	}
}
