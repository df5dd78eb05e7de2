package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/fx"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExchangeRateService resolves the rate used to convert base into quote.
type ExchangeRateService interface {
	Resolve(ctx context.Context, base, quote string) (fx.Quote, error)
}

// RateResolver resolves rates from, in order: the Redis cache, fresh
// persisted history, the live provider, older persisted history and the
// static fallback table. Each layer is optional. Candidates that fail
// validation fall through.
type RateResolver struct {
	cache        *fx.Cache
	live         fx.Provider
	history      repository.RateHistory
	fallback     *fx.Static
	freshFor     time.Duration
	maxStaleness time.Duration
	now          func() time.Time
}

type RateResolverOption func(*RateResolver)

func WithRateCache(c *fx.Cache) RateResolverOption {
	return func(r *RateResolver) { r.cache = c }
}

func WithLiveRates(p fx.Provider) RateResolverOption {
	return func(r *RateResolver) { r.live = p }
}

// WithRateHistory enables persisted rates no older than maxStaleness.
func WithRateHistory(h repository.RateHistory, maxStaleness time.Duration) RateResolverOption {
	return func(r *RateResolver) {
		r.history = h
		r.maxStaleness = maxStaleness
	}
}

// WithFreshHistory serves persisted rates younger than maxAge without asking
// the live provider. It needs WithRateHistory.
func WithFreshHistory(maxAge time.Duration) RateResolverOption {
	return func(r *RateResolver) { r.freshFor = maxAge }
}

func WithFallbackRates(s *fx.Static) RateResolverOption {
	return func(r *RateResolver) { r.fallback = s }
}

func NewRateResolver(opts ...RateResolverOption) *RateResolver {
	r := &RateResolver{
		maxStaleness: 24 * time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RateResolver) Resolve(ctx context.Context, base, quote string) (fx.Quote, error) {
	if base == quote {
		return fx.Quote{Base: base, Quote: quote, Rate: decimal.NewFromInt(1), FetchedAt: r.now().UTC(), Source: fx.SourceLive}, nil
	}

	if r.cache != nil {
		table, ok, err := r.cache.Get(ctx, base)
		if err != nil {
			zap.L().Warn("fx cache lookup failed", zap.String("base", base), zap.Error(err))
		} else if ok {
			if q, ok := r.accept(table.Quote(quote, fx.SourceCache)); ok {
				return q, nil
			}
		}
	}

	if r.freshFor > 0 {
		if q, ok := r.fromHistory(ctx, base, quote, r.freshFor); ok {
			return q, nil
		}
	}

	if r.live != nil {
		table, err := r.Refresh(ctx, base)
		if err != nil {
			zap.L().Warn("live fx fetch failed", zap.String("base", base), zap.Error(err))
		} else if q, ok := r.accept(table.Quote(quote, fx.SourceLive)); ok {
			return q, nil
		}
	}

	if q, ok := r.fromHistory(ctx, base, quote, r.maxStaleness); ok {
		return q, nil
	}

	if r.fallback != nil {
		if q, ok := r.accept(r.fallback.Quote(base, quote)); ok {
			zap.L().Warn("using fallback fx rate", zap.String("base", base), zap.String("quote", quote), zap.String("rate", q.Rate.String()))
			return q, nil
		}
	}

	return fx.Quote{}, fmt.Errorf("%w: %s/%s", domain.ErrRateUnavailable, base, quote)
}

// fromHistory returns the latest persisted rate for the pair when it is no
// older than maxAge.
func (r *RateResolver) fromHistory(ctx context.Context, base, quote string, maxAge time.Duration) (fx.Quote, bool) {
	if r.history == nil {
		return fx.Quote{}, false
	}
	rate, fetchedAt, err := r.history.LatestRate(ctx, base, quote)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fx.Quote{}, false
	case err != nil:
		zap.L().Warn("fx history lookup failed", zap.String("base", base), zap.String("quote", quote), zap.Error(err))
		return fx.Quote{}, false
	case r.now().Sub(fetchedAt) > maxAge:
		zap.L().Debug("stored fx rate too old", zap.String("base", base), zap.String("quote", quote), zap.Time("fetched_at", fetchedAt))
		return fx.Quote{}, false
	}
	return r.accept(fx.Quote{Base: base, Quote: quote, Rate: rate, FetchedAt: fetchedAt, Source: fx.SourceHistory}, true)
}

func (r *RateResolver) accept(q fx.Quote, found bool) (fx.Quote, bool) {
	if !found {
		return fx.Quote{}, false
	}
	if err := q.Validate(q.Base, q.Quote); err != nil {
		zap.L().Warn("discarding invalid fx quote", zap.String("source", q.Source), zap.Error(err))
		return fx.Quote{}, false
	}
	observability.IncrementFXQuote(q.Source)
	return q, true
}

// Refresh fetches the live table for base and stores it in the cache and the
// rate history. Storage failures are logged; the fetched table is still
// returned.
func (r *RateResolver) Refresh(ctx context.Context, base string) (fx.Table, error) {
	if r.live == nil {
		return fx.Table{}, fmt.Errorf("no live rate provider configured")
	}
	table, err := r.live.Latest(ctx, base)
	if err != nil {
		return fx.Table{}, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, table); err != nil {
			zap.L().Warn("fx cache store failed", zap.String("base", base), zap.Error(err))
		}
	}
	if r.history != nil {
		if err := r.history.SaveRates(ctx, table.Base, table.Rates, table.FetchedAt); err != nil {
			zap.L().Warn("fx history store failed", zap.String("base", base), zap.Error(err))
		}
	}
	return table, nil
}

// Quotes resolves base against every currency in quotes, skipping pairs with
// no usable rate.
func (r *RateResolver) Quotes(ctx context.Context, base string, quotes []string) []fx.Quote {
	out := make([]fx.Quote, 0, len(quotes))
	for _, quote := range quotes {
		if quote == base {
			continue
		}
		q, err := r.Resolve(ctx, base, quote)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out
}
