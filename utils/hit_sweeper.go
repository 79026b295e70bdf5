package utils

import (
	"context"
	"time"

	"github.com/cppla/hitcount/hitcount"
)

// StartHitSweeper launches a background goroutine that purges hits older than
// retention every interval until ctx is cancelled. Failures are logged and retried on
// the next tick.
func StartHitSweeper(ctx context.Context, sw *hitcount.Sweeper, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			// wait first so boot is not slowed by a large purge
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			removed, err := sw.Sweep(ctx, retention)
			if err != nil {
				if ctx.Err() == nil {
					Sugar.Errorf("hit sweep failed after removing %d hits: %v", removed, err)
				}
				continue
			}
			if removed > 0 {
				Sugar.Infof("hit sweep removed %d hits", removed)
			}
		}
	}()
}
