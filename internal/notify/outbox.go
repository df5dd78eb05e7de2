package notify

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/fx-wallet/internal/observability"
	"go.uber.org/zap"
)

// ErrOutboxFull is returned by Publish when the buffer has no room.
var ErrOutboxFull = errors.New("notification outbox full")

// Outbox is a bounded in-process queue between the engine and the sinks.
// Publishing never blocks.
type Outbox struct {
	events chan Event
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 1
	}
	return &Outbox{events: make(chan Event, size)}
}

func (o *Outbox) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case o.events <- ev:
		observability.SetNotificationQueueSize(len(o.events))
		return nil
	default:
		return ErrOutboxFull
	}
}

// Len reports the number of queued events.
func (o *Outbox) Len() int {
	return len(o.events)
}

// Drain delivers queued events to sink until ctx is cancelled. Delivery
// errors are logged and the event is dropped.
func (o *Outbox) Drain(ctx context.Context, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.deliver(ctx, sink, ev)
		}
	}
}

// Flush delivers whatever is queued right now and returns.
func (o *Outbox) Flush(ctx context.Context, sink Sink) int {
	n := 0
	for {
		select {
		case ev := <-o.events:
			o.deliver(ctx, sink, ev)
			n++
		default:
			return n
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, sink Sink, ev Event) {
	observability.SetNotificationQueueSize(len(o.events))
	if err := sink.Send(ctx, ev); err != nil {
		zap.L().Warn("notification delivery failed",
			zap.String("user_id", ev.UserID.String()),
			zap.String("kind", ev.Kind),
			zap.Error(err),
		)
	}
}
