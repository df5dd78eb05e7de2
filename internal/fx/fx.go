// Package fx fetches, caches and validates exchange rates.
package fx

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/shopspring/decimal"
)

// Where a quote came from.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceHistory  = "history"
	SourceFallback = "fallback"
)

// Quote is a single exchange rate: Rate units of Quote per one unit of Base.
type Quote struct {
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
	Source    string          `json:"source"`
}

// Validate rejects quotes that are not usable for converting base into quote.
// Rates come from outside the service and are never trusted as-is.
func (q Quote) Validate(base, quote string) error {
	if q.Base != base || q.Quote != quote {
		return fmt.Errorf("%w: got %s/%s, want %s/%s", domain.ErrRateUnavailable, q.Base, q.Quote, base, quote)
	}
	if err := domain.ValidateRate(q.Rate); err != nil {
		return fmt.Errorf("%s/%s: %w", base, quote, err)
	}
	return nil
}

// Table is every rate for one base currency at one point in time.
type Table struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Quote extracts a single pair from the table.
func (t Table) Quote(quote, source string) (Quote, bool) {
	rate, ok := t.Rates[quote]
	if !ok {
		return Quote{}, false
	}
	return Quote{Base: t.Base, Quote: quote, Rate: rate, FetchedAt: t.FetchedAt, Source: source}, true
}

// Provider returns the latest rates for a base currency.
type Provider interface {
	Latest(ctx context.Context, base string) (Table, error)
}
