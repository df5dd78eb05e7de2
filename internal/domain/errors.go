package domain

import "errors"

// Ledger error taxonomy. Every failure returned by the transaction engine wraps
// exactly one of these, so callers can branch with errors.Is.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrOwnershipMismatch       = errors.New("wallet ownership mismatch")
	ErrSameCurrencyExchange    = errors.New("cannot exchange between wallets of the same currency")
	ErrCurrencyMismatch        = errors.New("transfer currencies do not match")
	ErrRateUnavailable         = errors.New("exchange rate unavailable")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrSameWallet              = errors.New("source and target wallet are the same")
	ErrWalletInactive          = errors.New("wallet is not active")
	ErrInvalidStatusTransition = errors.New("invalid wallet status transition")
	ErrUnsupportedCurrency     = errors.New("unsupported currency")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrWalletNotFound, "wallet_not_found"},
	{ErrOwnershipMismatch, "ownership_mismatch"},
	{ErrSameCurrencyExchange, "same_currency_exchange"},
	{ErrCurrencyMismatch, "currency_mismatch"},
	{ErrRateUnavailable, "rate_unavailable"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrSameWallet, "same_wallet"},
	{ErrWalletInactive, "wallet_inactive"},
	{ErrInvalidStatusTransition, "invalid_status_transition"},
	{ErrUnsupportedCurrency, "unsupported_currency"},
}

// Code returns the stable machine-readable code for err, or "internal" when
// err does not wrap a ledger error.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
