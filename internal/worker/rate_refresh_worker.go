package worker

import (
	"context"
	"time"

	"github.com/ayo6706/fx-wallet/internal/fx"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"go.uber.org/zap"
)

// RateRefresher fetches and stores the live rate table for one base.
type RateRefresher interface {
	Refresh(ctx context.Context, base string) (fx.Table, error)
}

// RateRefreshWorker keeps the rate cache and history warm so exchanges rarely
// wait on the live provider.
type RateRefreshWorker struct {
	*periodic
	rates RateRefresher
	bases []string
}

func NewRateRefreshWorker(rates RateRefresher, bases []string) *RateRefreshWorker {
	return &RateRefreshWorker{
		periodic: newPeriodic("rate refresh", 5*time.Minute),
		rates:    rates,
		bases:    bases,
	}
}

func (w *RateRefreshWorker) WithInterval(interval time.Duration) *RateRefreshWorker {
	w.setInterval(interval)
	return w
}

// Start blocks, refreshing every base immediately and then on each tick.
func (w *RateRefreshWorker) Start(ctx context.Context) {
	zap.L().Info("rate refresh worker starting",
		zap.Duration("interval", w.interval),
		zap.Strings("bases", w.bases),
	)
	w.loop(ctx, func(ctx context.Context) { w.RunOnce(ctx) })
}

func (w *RateRefreshWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce refreshes every base and returns how many refreshes failed. One
// failing base does not stop the others.
func (w *RateRefreshWorker) RunOnce(ctx context.Context) int {
	failed := 0
	for _, base := range w.bases {
		table, err := w.rates.Refresh(ctx, base)
		if err != nil {
			failed++
			observability.IncrementWorkerRun("rate_refresh", "failed")
			zap.L().Warn("rate refresh failed", zap.String("base", base), zap.Error(err))
			continue
		}
		observability.IncrementWorkerRun("rate_refresh", "success")
		zap.L().Debug("rates refreshed", zap.String("base", base), zap.Int("pairs", len(table.Rates)))
	}
	return failed
}
