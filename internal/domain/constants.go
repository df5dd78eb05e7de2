package domain

const (
	TxTypeTransfer = "transfer"
	TxTypeExchange = "exchange"

	WalletStatusActive = "active"
	WalletStatusFrozen = "frozen"
	WalletStatusClosed = "closed"

	// Wallet addresses look like FXW-USD-7QK2M9ZD.
	WalletAddressPrefix = "FXW"

	NotificationKindTransaction = "transaction"
	NotificationKindCredit      = "credit"
)

// DefaultCurrencies are provisioned for every user when no currency list is configured.
var DefaultCurrencies = []string{"AUD", "CAD", "CHF", "EUR", "GBP", "JPY", "USD"}
