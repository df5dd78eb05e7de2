package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/fx-wallet/internal/fx"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/notify"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/ayo6706/fx-wallet/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) Refresh(ctx context.Context, base string) (fx.Table, error) {
	args := m.Called(ctx, base)
	t, _ := args.Get(0).(fx.Table)
	return t, args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestRateRefreshWorker_RunOnceContinuesPastFailures(t *testing.T) {
	rates := &mockRefresher{}
	rates.On("Refresh", mock.Anything, "USD").Return(fx.Table{}, errors.New("provider down"))
	rates.On("Refresh", mock.Anything, "EUR").Return(fx.Table{
		Base:  "EUR",
		Rates: map[string]decimal.Decimal{"USD": decimal.RequireFromString("1.08")},
	}, nil)

	w := NewRateRefreshWorker(rates, []string{"USD", "EUR"})
	assert.Equal(t, 1, w.RunOnce(context.Background()))
	rates.AssertExpectations(t)
}

func TestRateRefreshWorker_RefreshesOnStartAndStops(t *testing.T) {
	var calls atomic.Int32
	rates := &mockRefresher{}
	rates.On("Refresh", mock.Anything, "GBP").
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(fx.Table{Base: "GBP"}, nil)

	w := NewRateRefreshWorker(rates, []string{"GBP"}).WithInterval(10 * time.Millisecond)
	stop := w.Run(context.Background())

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	stop()
	stop()
}

func TestReconciliationWorker_RunOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	w := NewReconciliationWorker(service.NewReconciliationService(store))
	ctx := context.Background()

	assert.Equal(t, 0, w.RunOnce(ctx))

	store.SeedWallet(models.Wallet{UserID: uuid.New(), Currency: "USD", Balance: decimal.NewFromInt(5)})
	assert.Equal(t, 1, w.RunOnce(ctx))
}

func TestNotificationWorker_DeliversAndFlushesOnStop(t *testing.T) {
	outbox := notify.NewOutbox(16)
	sink := &recordingSink{}
	w := NewNotificationWorker(outbox, sink)
	stop := w.Run(context.Background())

	ctx := context.Background()
	require.NoError(t, outbox.Publish(ctx, notify.Event{UserID: uuid.New(), Title: "one"}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, outbox.Publish(ctx, notify.Event{UserID: uuid.New()}))
	}
	stop()

	assert.Equal(t, 6, sink.count())
	assert.Equal(t, 0, outbox.Len())
}
