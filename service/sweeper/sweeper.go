package sweeper

import (
	"context"
	"log/slog"
	"time"

	"librastore/util/metrics"
)

// Sweep is one periodic batch pass; it returns how many rows it touched.
type Sweep struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

// Runner drives the time-based transitions (overdue loans, expired payments)
// on a fixed interval, independent of request handlers. A failing sweep is
// logged and retried next tick; it never stops the runner.
type Runner struct {
	interval time.Duration
	sweeps   []Sweep
	log      *slog.Logger
}

func NewRunner(interval time.Duration, log *slog.Logger, sweeps ...Sweep) *Runner {
	return &Runner{interval: interval, sweeps: sweeps, log: log}
}

func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, time.Now().UTC())
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, now time.Time) {
	for _, s := range r.sweeps {
		metrics.SweepRuns.WithLabelValues(s.Name).Inc()
		n, err := s.Run(ctx, now)
		if err != nil {
			metrics.SweepFailures.WithLabelValues(s.Name).Inc()
			r.log.Error("sweep failed", "sweep", s.Name, "err", err)
			continue
		}
		if n > 0 {
			r.log.Info("sweep done", "sweep", s.Name, "affected", n)
		}
	}
}
