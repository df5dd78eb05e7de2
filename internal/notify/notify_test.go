package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Name() string { return "mock" }

func (m *mockSink) Send(ctx context.Context, ev Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func TestOutbox_PublishIsBounded(t *testing.T) {
	outbox := NewOutbox(2)
	ctx := context.Background()
	ev := Event{UserID: uuid.New(), Kind: domain.NotificationKindTransaction}

	require.NoError(t, outbox.Publish(ctx, ev))
	require.NoError(t, outbox.Publish(ctx, ev))
	assert.ErrorIs(t, outbox.Publish(ctx, ev), ErrOutboxFull)
	assert.Equal(t, 2, outbox.Len())
}

func TestOutbox_FlushDeliversAndSurvivesSinkErrors(t *testing.T) {
	outbox := NewOutbox(4)
	ctx := context.Background()
	first := Event{UserID: uuid.New(), Kind: domain.NotificationKindTransaction, Title: "first"}
	second := Event{UserID: uuid.New(), Kind: domain.NotificationKindCredit, Title: "second"}
	require.NoError(t, outbox.Publish(ctx, first))
	require.NoError(t, outbox.Publish(ctx, second))

	sink := &mockSink{}
	sink.On("Send", mock.Anything, mock.MatchedBy(func(ev Event) bool { return ev.Title == "first" })).Return(errors.New("smtp down"))
	sink.On("Send", mock.Anything, mock.MatchedBy(func(ev Event) bool { return ev.Title == "second" })).Return(nil)

	assert.Equal(t, 2, outbox.Flush(ctx, sink))
	assert.Equal(t, 0, outbox.Len())
	sink.AssertNumberOfCalls(t, "Send", 2)
}

func TestOutbox_DrainStopsOnCancel(t *testing.T) {
	outbox := NewOutbox(1)
	sink := &mockSink{}
	sink.On("Send", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		outbox.Drain(ctx, sink)
		close(done)
	}()

	require.NoError(t, outbox.Publish(context.Background(), Event{UserID: uuid.New()}))
	require.Eventually(t, func() bool { return outbox.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not stop")
	}
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := repository.NewMemoryStore()
	userID := uuid.New()

	sub := client.Subscribe(ctx, Channel(userID))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	failing := &mockSink{}
	failing.On("Send", mock.Anything, mock.Anything).Return(errors.New("unreachable"))

	fanout := Fanout{NewLogSink(zap.NewNop()), failing, NewStoreSink(store), NewRedisSink(client)}
	ev := Event{UserID: userID, Kind: domain.NotificationKindTransaction, Title: "Exchange completed", Body: "50.00 USD -> 45.00 EUR"}

	err = fanout.Send(ctx, ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock sink")

	stored := store.Notifications()
	require.Len(t, stored, 1)
	assert.Equal(t, userID, stored[0].UserID)
	assert.Equal(t, "Exchange completed", stored[0].Title)

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, ev.Body, got.Body)
}
