// Package sweep reaps expired entries in the background.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper physically removes expired entries and reports how many went.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Start sweeps every interval until ctx is cancelled. It blocks, so callers
// run it in its own goroutine. Failures are logged and the loop carries on.
func Start(ctx context.Context, s Sweeper, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Ctx(ctx).Err(err).Msg("sweep failed")
				continue
			}
			log.Debug().Ctx(ctx).Int64("removed", n).Msg("swept expired entries")
		}
	}
}
