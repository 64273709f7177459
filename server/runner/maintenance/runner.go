// Package maintenance runs the periodic retention pass that keeps the
// memory store inside its age and size limits.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnemo-labs/mnemod/server/service/privacy"
)

type Runner struct {
	retention *privacy.Retention
	interval  time.Duration
}

func NewRunner(retention *privacy.Retention) *Runner {
	return &Runner{
		retention: retention,
		interval:  time.Hour,
	}
}

// Run starts the background loop. It runs one pass on startup and then on
// every tick until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.runPass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runPass(ctx)
		case <-ctx.Done():
			slog.Info("maintenance runner stopped")
			return
		}
	}
}

// RunOnce runs a single retention pass (for manual trigger and tests).
func (r *Runner) RunOnce(ctx context.Context) {
	r.runPass(ctx)
}

func (r *Runner) runPass(ctx context.Context) {
	result, err := r.retention.RunMaintenance(ctx)
	if err != nil {
		// A failed pass is retried on the next tick; the store stays intact.
		slog.Error("retention pass failed", "error", err)
		return
	}
	if result.DeletedByAge > 0 || result.DeletedByLimit > 0 {
		slog.Info("retention pass done",
			"deletedByAge", result.DeletedByAge,
			"deletedByLimit", result.DeletedByLimit)
	}
}
