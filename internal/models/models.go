package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	Address   string          `json:"address"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger row.
type Transaction struct {
	ID                 int64           `json:"id"`
	Type               string          `json:"type"` // "exchange" or "transfer"
	UserID             uuid.UUID       `json:"user_id"`
	CounterpartyUserID uuid.UUID       `json:"counterparty_user_id"`
	SourceWalletID     uuid.UUID       `json:"source_wallet_id"`
	TargetWalletID     uuid.UUID       `json:"target_wallet_id"`
	SourceCurrency     string          `json:"source_currency"`
	TargetCurrency     string          `json:"target_currency"`
	SourceAmount       decimal.Decimal `json:"source_amount"`
	TargetAmount       decimal.Decimal `json:"target_amount"`
	FXRate             decimal.Decimal `json:"fx_rate"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	Note               *string         `json:"note,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Credit records an administrative top-up of a wallet.
type Credit struct {
	ID        int64           `json:"id"`
	WalletID  uuid.UUID       `json:"wallet_id"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// WalletDrift reports a wallet whose balance does not match the ledger.
type WalletDrift struct {
	WalletID uuid.UUID       `json:"wallet_id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Expected decimal.Decimal `json:"expected"`
}

// TransactionFilter bounds ledger listings.
type TransactionFilter struct {
	Type  string
	Limit int
}
