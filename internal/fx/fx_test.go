package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote_Validate(t *testing.T) {
	good := Quote{Base: "USD", Quote: "EUR", Rate: decimal.RequireFromString("0.9")}
	require.NoError(t, good.Validate("USD", "EUR"))

	assert.ErrorIs(t, good.Validate("USD", "GBP"), domain.ErrRateUnavailable)

	zero := good
	zero.Rate = decimal.Zero
	assert.ErrorIs(t, zero.Validate("USD", "EUR"), domain.ErrRateUnavailable)

	negative := good
	negative.Rate = decimal.RequireFromString("-0.5")
	assert.ErrorIs(t, negative.Validate("USD", "EUR"), domain.ErrRateUnavailable)

	overPrecise := good
	overPrecise.Rate = decimal.RequireFromString("0.9123456789012")
	assert.ErrorIs(t, overPrecise.Validate("USD", "EUR"), domain.ErrRateUnavailable)

	stored := good
	stored.Rate = decimal.RequireFromString("0.912345678901")
	assert.NoError(t, stored.Validate("USD", "EUR"))
}

func TestFrankfurter_Latest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2026-10-15","rates":{"EUR":0.91234,"JPY":149.87}}`))
	}))
	defer srv.Close()

	table, err := NewFrankfurter(srv.URL, time.Second).Latest(context.Background(), "USD")
	require.NoError(t, err)

	assert.Equal(t, "USD", table.Base)
	assert.Equal(t, "0.91234", table.Rates["EUR"].String())
	assert.Equal(t, "149.87", table.Rates["JPY"].String())
	assert.Equal(t, "1", table.Rates["USD"].String())
	assert.False(t, table.FetchedAt.IsZero())

	q, ok := table.Quote("EUR", SourceLive)
	require.True(t, ok)
	assert.Equal(t, SourceLive, q.Source)
	_, ok = table.Quote("CHF", SourceLive)
	assert.False(t, ok)
}

func TestFrankfurter_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"rates":`))
		},
		"wrong base": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"amount":1,"base":"EUR","rates":{"USD":1.1}}`))
		},
		"no rates": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"amount":1,"base":"USD","rates":{}}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			_, err := NewFrankfurter(srv.URL, time.Second).Latest(context.Background(), "USD")
			assert.Error(t, err)
		})
	}
}

func TestFrankfurter_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewFrankfurter(srv.URL, 20*time.Millisecond).Latest(context.Background(), "USD")
	assert.Error(t, err)
}

func TestCache_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, 5*time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "USD")
	require.NoError(t, err)
	assert.False(t, ok)

	table := Table{
		Base:      "USD",
		Rates:     map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.912345")},
		FetchedAt: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.Set(ctx, table))
	assert.Equal(t, 5*time.Minute, mr.TTL("fx:USD"))

	got, ok, err := cache.Get(ctx, "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Rates["EUR"].Equal(table.Rates["EUR"]))
	assert.True(t, got.FetchedAt.Equal(table.FetchedAt))

	mr.FastForward(6 * time.Minute)
	_, ok, err = cache.Get(ctx, "USD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, mr.Set("fx:USD", "not json"))

	_, _, err := NewCache(client, time.Minute).Get(context.Background(), "USD")
	assert.Error(t, err)
}

func TestStatic_Quote(t *testing.T) {
	s := NewStatic()

	q, ok := s.Quote("USD", "EUR")
	require.True(t, ok)
	assert.Equal(t, "0.92", q.Rate.String())
	assert.Equal(t, SourceFallback, q.Source)

	// JPY has no table of its own; the USD/JPY rate is inverted.
	q, ok = s.Quote("JPY", "USD")
	require.True(t, ok)
	assert.Equal(t, "0.00668896", q.Rate.String())

	q, ok = s.Quote("CHF", "CHF")
	require.True(t, ok)
	assert.Equal(t, "1", q.Rate.String())

	_, ok = s.Quote("CAD", "AUD")
	assert.False(t, ok)
}
