package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is a CounterStore that can discard expired windows.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// RunSweeper sweeps s every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Sweep(ctx, now)
			if err != nil {
				logger.Error("rate limit sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept expired rate limit windows", "count", n)
			}
		}
	}
}
