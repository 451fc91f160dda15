package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/cardflow/internal/metrics"
)

// Simulate plays the deck's script in n independent sessions on a pool of
// deck.Engine.Workers goroutines. Reports come back in session order. When
// ctx ends early the sessions that never ran have nil reports.
func (e *Engine) Simulate(ctx context.Context, prefix string, n int) ([]*Report, error) {
	reports := make([]*Report, n)

	var pool *workerPool[string, *Report]
	pool = newWorkerPool[string, *Report](ctx, e.deck.Engine.Workers, e.deck.Engine.QueueDepth,
		func(ctx context.Context, id string) (*Report, error) {
			start := time.Now()
			metrics.SimulationsRunning.Set(float64(pool.Busy()))
			defer func() {
				metrics.SimulationDuration.Observe(float64(time.Since(start).Milliseconds()))
				metrics.SimulationQueueUtilization.Set(pool.Utilization())
			}()
			return e.Run(ctx, id)
		},
		// Sequence numbers follow submission order, so each job owns its slot.
		func(seq int, id string, r *Report, err error) {
			metrics.SimulationsRunning.Set(float64(pool.Busy()))
			if r == nil {
				r = &Report{Session: id, Status: StatusFailed}
			}
			if err != nil && r.Error == "" {
				r.Error = err.Error()
			}
			reports[seq] = r
		},
	)

	var err error
	for i := 0; i < n; i++ {
		if _, err = pool.Submit(ctx, fmt.Sprintf("%s-%d", prefix, i+1)); err != nil {
			break
		}
	}
	pool.Drain()
	metrics.SimulationsRunning.Set(float64(pool.Busy()))
	if err == nil {
		err = ctx.Err()
	}
	e.logger.Info("simulation finished", "sessions", n, "error", err)
	return reports, err
}
