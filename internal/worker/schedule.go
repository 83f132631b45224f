package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunEvery runs fn immediately and then on every tick until ctx is cancelled.
// A failed run is logged and the schedule continues. With every <= 0 fn runs once
// and its error is returned.
func RunEvery(ctx context.Context, every time.Duration, name string, log *zap.Logger, fn func(context.Context) error) error {
	if every <= 0 {
		return fn(ctx)
	}

	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		if err := fn(ctx); err != nil {
			log.Error("scheduled run failed", zap.String("job", name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
