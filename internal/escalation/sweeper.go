package escalation

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drives periodic timeout sweeps against an Engine.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. If interval is <= 0, it defaults to 1m.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run sweeps until ctx is cancelled. The sweep is idempotent, so running it
// arbitrarily often is safe.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.RunOnce(); err != nil {
			s.logger.Error("timeout sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// RunOnce performs a single sweep with the current clock.
func (s *Sweeper) RunOnce() error {
	count, err := s.engine.SweepTimeouts(time.Now().UTC())
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("swept stale pending requests", "count", count)
	}
	return nil
}
