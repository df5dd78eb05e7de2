package service

import (
	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/shopspring/decimal"
)

// FeeSchedule prices an exchange in the source currency.
type FeeSchedule interface {
	Fee(sourceCurrency, targetCurrency string, amount decimal.Decimal) decimal.Decimal
}

var basisPointDivisor = decimal.NewFromInt(10000)

// BasisPointFee charges BPS/10000 of the amount, rounded half-up to the
// source currency's minor units. The zero value charges nothing.
type BasisPointFee struct {
	BPS decimal.Decimal
}

func (f BasisPointFee) Fee(sourceCurrency, _ string, amount decimal.Decimal) decimal.Decimal {
	if !f.BPS.IsPositive() {
		return decimal.Zero
	}
	return domain.RoundHalfUp(amount.Mul(f.BPS).Div(basisPointDivisor), sourceCurrency)
}
