package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/fx-wallet/internal/notify"
	"go.uber.org/zap"
)

// NotificationWorker delivers events queued in the outbox to a sink.
type NotificationWorker struct {
	outbox       *notify.Outbox
	sink         notify.Sink
	flushTimeout time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

func NewNotificationWorker(outbox *notify.Outbox, sink notify.Sink) *NotificationWorker {
	return &NotificationWorker{
		outbox:       outbox,
		sink:         sink,
		flushTimeout: 5 * time.Second,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start blocks until ctx is canceled or Stop is called, then delivers what is
// still queued within the flush timeout.
func (w *NotificationWorker) Start(ctx context.Context) {
	defer close(w.done)
	zap.L().Info("notification worker starting", zap.String("sink", w.sink.Name()))

	drainCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopCh:
		case <-drainCtx.Done():
		}
		cancel()
	}()
	w.outbox.Drain(drainCtx, w.sink)

	flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), w.flushTimeout)
	defer cancelFlush()
	if n := w.outbox.Flush(flushCtx, w.sink); n > 0 {
		zap.L().Info("notification worker flushed pending events", zap.Int("count", n))
	}
	zap.L().Info("notification worker stopped")
}

// Stop ends the loop and waits for the final flush.
func (w *NotificationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *NotificationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
