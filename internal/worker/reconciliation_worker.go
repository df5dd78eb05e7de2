package worker

import (
	"context"
	"time"

	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/ayo6706/fx-wallet/internal/service"
	"go.uber.org/zap"
)

// ReconciliationWorker compares every wallet balance with its ledger rows on
// an interval (hourly by default).
type ReconciliationWorker struct {
	*periodic
	svc *service.ReconciliationService
}

func NewReconciliationWorker(svc *service.ReconciliationService) *ReconciliationWorker {
	return &ReconciliationWorker{
		periodic: newPeriodic("reconciliation", time.Hour),
		svc:      svc,
	}
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	w.setInterval(interval)
	return w
}

// Start blocks until ctx is canceled or Stop is called.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	w.loop(ctx, func(ctx context.Context) { w.RunOnce(ctx) })
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce performs a single pass and returns the number of drifted wallets.
// Each drift is logged and counted by ReconciliationService.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) int {
	drift, err := w.svc.Run(ctx)
	switch {
	case err != nil:
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return 0
	case len(drift) > 0:
		observability.IncrementWorkerRun("reconciliation", "drift")
	default:
		observability.IncrementWorkerRun("reconciliation", "success")
	}
	return len(drift)
}
