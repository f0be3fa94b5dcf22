package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// sweeper deactivates expired documents of one kind.
type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

const sweepTimeout = time.Minute

// newSweeper schedules the expiry sweep of every kind on spec. A run still in progress
// makes the next one skip.
func newSweeper(spec string, log Logger, actus, gifts sweeper) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		runSweep(context.Background(), log, map[string]sweeper{"actu": actus, "gift": gifts})
	})
	if err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	return c, nil
}

func runSweep(ctx context.Context, log Logger, kinds map[string]sweeper) {
	for kind, s := range kinds {
		if s == nil {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		n, err := s.Sweep(sctx)
		cancel()
		if err != nil {
			log.Error("sweep.fail", "kind", kind, "err", err)
			continue
		}
		if n > 0 {
			log.Info("sweep.deactivated", "kind", kind, "count", n)
		}
	}
}
