package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retention defaults.
const (
	DefaultMaxAge        = 30 * 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// RunSweeper deletes expired conversations on a fixed cadence, independent
// of request handling. It blocks until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	s.logger.Info("retention sweeper started",
		zap.Duration("interval", interval), zap.Duration("max_age", maxAge))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.SweepExpired(maxAge)
		}
	}
}
