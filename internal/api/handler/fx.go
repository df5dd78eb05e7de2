package handler

import (
	"context"
	"net/http"
	"slices"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/fx"
)

// RateQuoter resolves base against a list of quote currencies.
type RateQuoter interface {
	Quotes(ctx context.Context, base string, quotes []string) []fx.Quote
}

type FXHandler struct {
	rates      RateQuoter
	currencies []string
}

func NewFXHandler(rates RateQuoter, currencies []string) *FXHandler {
	return &FXHandler{rates: rates, currencies: currencies}
}

type ratesResponse struct {
	Base  string     `json:"base"`
	Rates []fx.Quote `json:"rates"`
}

// Rates handles GET /v1/fx/rates?base=USD.
func (h *FXHandler) Rates(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("base")
	if raw == "" {
		raw = "USD"
	}
	base, err := domain.NormalizeCurrency(raw)
	if err == nil && !slices.Contains(h.currencies, base) {
		err = domain.ErrUnsupportedCurrency
	}
	if err != nil {
		respondServiceError(w, r, "fx rates", err)
		return
	}

	RespondJSON(w, http.StatusOK, ratesResponse{
		Base:  base,
		Rates: h.rates.Quotes(r.Context(), base, h.currencies),
	})
}
