package fx

import (
	"time"

	"github.com/shopspring/decimal"
)

// fallbackRates is a last-resort table used when no live, cached or stored
// rate is available.
var fallbackRates = map[string]map[string]string{
	"USD": {"EUR": "0.92", "GBP": "0.79", "JPY": "149.50", "CHF": "0.88", "CAD": "1.36", "AUD": "1.53"},
	"EUR": {"USD": "1.09", "GBP": "0.86", "JPY": "162.50", "CHF": "0.96", "CAD": "1.48", "AUD": "1.66"},
	"GBP": {"USD": "1.27", "EUR": "1.16", "JPY": "189.00", "CHF": "1.11", "CAD": "1.72", "AUD": "1.93"},
}

// Static serves the fallback table. Pairs missing in one direction are
// answered with the inverse of the other direction.
type Static struct {
	rates map[string]map[string]decimal.Decimal
	now   func() time.Time
}

func NewStatic() *Static {
	rates := make(map[string]map[string]decimal.Decimal, len(fallbackRates))
	for base, quotes := range fallbackRates {
		rates[base] = make(map[string]decimal.Decimal, len(quotes))
		for quote, raw := range quotes {
			rates[base][quote] = decimal.RequireFromString(raw)
		}
	}
	return &Static{rates: rates, now: time.Now}
}

// Quote returns the fallback rate for base/quote if one is known.
func (s *Static) Quote(base, quote string) (Quote, bool) {
	q := Quote{Base: base, Quote: quote, FetchedAt: s.now().UTC(), Source: SourceFallback}
	if base == quote {
		q.Rate = decimal.NewFromInt(1)
		return q, true
	}
	if rate, ok := s.rates[base][quote]; ok {
		q.Rate = rate
		return q, true
	}
	if inverse, ok := s.rates[quote][base]; ok && inverse.IsPositive() {
		q.Rate = decimal.NewFromInt(1).DivRound(inverse, 8)
		return q, true
	}
	return Quote{}, false
}
