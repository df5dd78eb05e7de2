package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// periodic is the ticker loop shared by the interval workers: one pass at
// start, then one per tick, until the context ends or Stop is called.
type periodic struct {
	name     string
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newPeriodic(name string, interval time.Duration) *periodic {
	return &periodic{name: name, interval: interval, stopCh: make(chan struct{})}
}

func (p *periodic) setInterval(interval time.Duration) {
	if interval > 0 {
		p.interval = interval
	}
}

func (p *periodic) loop(ctx context.Context, pass func(context.Context)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	pass(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info(p.name+" worker context canceled")
			return
		case <-p.stopCh:
			zap.L().Info(p.name+" worker stop signal received")
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}

// Stop ends the loop. It is safe to call more than once.
func (p *periodic) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}
