package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits lists ISO 4217 exponents that differ from the usual two decimals.
var minorUnits = map[string]int32{
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"CLP": 0,
	"ISK": 0,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
}

// MinorUnits returns the number of decimal places used by currency.
func MinorUnits(currency string) int32 {
	if places, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return places
	}
	return 2
}

// NormalizeCurrency upper-cases code and checks it is a three letter code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
		}
	}
	return code, nil
}

// ParseAmount parses a user supplied decimal string for currency. The amount
// must be strictly positive and must not carry more decimals than the currency
// allows; anything else is ErrInvalidAmount.
func ParseAmount(raw, currency string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if err := ValidateAmount(amount, currency); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Ledger columns are NUMERIC(30, 8): at most 22 integer digits and 8
// decimals. Inputs with more significant digits than that are refused before
// any arithmetic touches them.
const (
	LedgerScale      = 8
	maxIntegerDigits = 22
	maxAmountDigits  = 30
)

// ValidateAmount checks amount > 0, that it fits the ledger columns and that
// it carries no more decimals than currency allows. An empty currency only
// enforces the ledger scale.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, amount.String())
	}
	digits := coefficientDigits(amount)
	if digits > maxAmountDigits || digits+int64(amount.Exponent()) > maxIntegerDigits {
		return fmt.Errorf("%w: amount is too large", ErrInvalidAmount)
	}
	places := int32(LedgerScale)
	if currency != "" {
		places = MinorUnits(currency)
	}
	if !FitsScale(amount, places) {
		if currency == "" {
			return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, places)
		}
		return fmt.Errorf("%w: more than %d decimal places for %s", ErrInvalidAmount, places, currency)
	}
	return nil
}

// coefficientDigits counts the digits of d's coefficient, saturating just
// above maxAmountDigits. 10^30 needs more than 99 bits.
func coefficientDigits(d decimal.Decimal) int64 {
	coef := d.Coefficient()
	if coef.BitLen() > 100 {
		return maxAmountDigits + 1
	}
	return int64(len(coef.Abs(coef).String()))
}

// FitsScale reports whether d can be written with at most scale decimals.
// It never rescales d, so it stays cheap for inputs like "1e-50000000".
func FitsScale(d decimal.Decimal, scale int32) bool {
	exp := int64(d.Exponent())
	if exp >= -int64(scale) {
		return true
	}
	excess := -exp - int64(scale)
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return true
	}
	// A non-zero coefficient below 10^excess cannot be a multiple of it.
	if int64(coef.BitLen()) <= excess*3 {
		return false
	}
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(excess), nil)
	return new(big.Int).Rem(coef, pow).Sign() == 0
}

// Rate columns are NUMERIC(30, 12).
const (
	RateScale            = 12
	maxRateIntegerDigits = 18
)

// ValidateRate checks that rate is positive and is stored exactly by the rate
// columns, so the recorded rate is the one amounts were converted with.
func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("%w: non-positive rate %s", ErrRateUnavailable, rate)
	}
	digits := coefficientDigits(rate)
	if digits > maxAmountDigits || digits+int64(rate.Exponent()) > maxRateIntegerDigits {
		return fmt.Errorf("%w: rate is too large", ErrRateUnavailable)
	}
	if !FitsScale(rate, RateScale) {
		return fmt.Errorf("%w: rate has more than %d decimal places", ErrRateUnavailable, RateScale)
	}
	return nil
}

// RoundHalfUp rounds d to the minor units of currency. Ties round away from
// zero, which for the positive amounts the ledger moves means half-up.
func RoundHalfUp(d decimal.Decimal, currency string) decimal.Decimal {
	return d.Round(MinorUnits(currency))
}

// Money represents a monetary value in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string // ISO 4217
}

// NewMoney creates a new Money instance.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// Convert converts the money to targetCurrency at rate (target units per one
// source unit), rounding half-up to the target's minor units.
func (m Money) Convert(targetCurrency string, rate decimal.Decimal) Money {
	return Money{
		Amount:   RoundHalfUp(m.Amount.Mul(rate), targetCurrency),
		Currency: targetCurrency,
	}
}

// Add returns m + other. Both values must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(MinorUnits(m.Currency)), m.Currency)
}
