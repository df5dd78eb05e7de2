// Package notify delivers user notifications after ledger commits.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is a notification for one user.
type Event struct {
	UserID     uuid.UUID `json:"user_id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher accepts events for later delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Sink delivers an event somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// LogSink writes events to the structured logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, ev Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.Info("notification",
		zap.String("user_id", ev.UserID.String()),
		zap.String("kind", ev.Kind),
		zap.String("title", ev.Title),
		zap.String("body", ev.Body),
	)
	return nil
}

// StoreSink persists events to the notifications table.
type StoreSink struct {
	store repository.NotificationWriter
}

func NewStoreSink(store repository.NotificationWriter) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Send(ctx context.Context, ev Event) error {
	return s.store.InsertNotification(ctx, &models.Notification{
		UserID: ev.UserID,
		Kind:   ev.Kind,
		Title:  ev.Title,
		Body:   ev.Body,
	})
}

// RedisSink publishes events on the notifications:<user_id> channel.
type RedisSink struct {
	redis redis.Cmdable
}

func NewRedisSink(client redis.Cmdable) *RedisSink {
	return &RedisSink{redis: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, Channel(ev.UserID), payload).Err()
}

// Channel is the Redis pub/sub channel for a user's notifications.
func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s", userID)
}

// Fanout sends every event to all sinks. A failing sink does not stop the
// others; the failures are joined.
type Fanout []Sink

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Send(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Send(ctx, ev); err != nil {
			observability.IncrementNotification(sink.Name(), "error")
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
			continue
		}
		observability.IncrementNotification(sink.Name(), "ok")
	}
	return errors.Join(errs...)
}
