package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Frankfurter reads ECB reference rates from a frankfurter API instance.
type Frankfurter struct {
	baseURL string
	client  *http.Client
}

func NewFrankfurter(baseURL string, timeout time.Duration) *Frankfurter {
	return &Frankfurter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type frankfurterResponse struct {
	Amount decimal.Decimal            `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// Latest calls GET /latest?from=<base>.
func (f *Frankfurter) Latest(ctx context.Context, base string) (Table, error) {
	endpoint := fmt.Sprintf("%s/latest?from=%s", f.baseURL, url.QueryEscape(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Table{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("frankfurter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Table{}, fmt.Errorf("frankfurter returned %d: %s", resp.StatusCode, body)
	}

	var payload frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Table{}, fmt.Errorf("decode frankfurter response: %w", err)
	}
	if payload.Base != base || len(payload.Rates) == 0 {
		return Table{}, fmt.Errorf("frankfurter response for %q has base %q and %d rates", base, payload.Base, len(payload.Rates))
	}

	// Rates are quoted per payload.Amount units of base, which is 1 unless
	// the caller asked otherwise.
	rates := make(map[string]decimal.Decimal, len(payload.Rates)+1)
	for code, rate := range payload.Rates {
		if !payload.Amount.IsZero() && !payload.Amount.Equal(decimal.NewFromInt(1)) {
			rate = rate.DivRound(payload.Amount, 12)
		}
		rates[code] = rate
	}
	rates[base] = decimal.NewFromInt(1)

	return Table{Base: base, Rates: rates, FetchedAt: time.Now().UTC()}, nil
}
