package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/notify"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultTxTimeout = 5 * time.Second

// Engine is the only component that moves money. Every exchange, transfer
// and credit is a single RunInTx unit that locks the wallets it touches in
// ascending id order, adjusts balances and appends the matching ledger row.
type Engine struct {
	store     QueryStore
	rates     ExchangeRateService
	fees      FeeSchedule
	publisher notify.Publisher
	txTimeout time.Duration
}

type EngineOption func(*Engine)

func WithFeeSchedule(f FeeSchedule) EngineOption {
	return func(e *Engine) { e.fees = f }
}

// WithPublisher sets where post-commit notifications go.
func WithPublisher(p notify.Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithTxTimeout bounds how long a single atomic unit may run.
func WithTxTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.txTimeout = d
		}
	}
}

func NewEngine(store QueryStore, rates ExchangeRateService, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		rates:     rates,
		fees:      BasisPointFee{},
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type ExchangeRequest struct {
	UserID         uuid.UUID
	SourceWalletID uuid.UUID
	TargetWalletID uuid.UUID
	Amount         decimal.Decimal
	Note           *string
}

// ExchangeCommand is an exchange with its rate already resolved.
type ExchangeCommand struct {
	UserID         uuid.UUID
	SourceWalletID uuid.UUID
	TargetWalletID uuid.UUID
	Amount         decimal.Decimal
	Rate           decimal.Decimal
	Note           *string
}

type ExchangeResult struct {
	TransactionID  int64           `json:"transaction_id"`
	SourceCurrency string          `json:"source_currency"`
	TargetCurrency string          `json:"target_currency"`
	SourceAmount   decimal.Decimal `json:"source_amount"`
	TargetAmount   decimal.Decimal `json:"target_amount"`
	FXRate         decimal.Decimal `json:"fx_rate"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
}

type TransferRequest struct {
	UserID         uuid.UUID
	SourceWalletID uuid.UUID
	TargetWalletID uuid.UUID
	Amount         decimal.Decimal
	Note           *string
}

type TransferResult struct {
	TransactionID  int64           `json:"transaction_id"`
	SourceCurrency string          `json:"source_currency"`
	TargetCurrency string          `json:"target_currency"`
	Amount         decimal.Decimal `json:"amount"`
}

// Exchange converts funds between two wallets of the same user. The rate is
// resolved before any wallet is locked.
func (e *Engine) Exchange(ctx context.Context, req ExchangeRequest) (res *ExchangeResult, err error) {
	defer func() { recordOutcome(domain.TxTypeExchange, err) }()

	if err := domain.ValidateAmount(req.Amount, ""); err != nil {
		return nil, err
	}
	source, target, err := e.readPair(ctx, req.SourceWalletID, req.TargetWalletID)
	if err != nil {
		return nil, err
	}
	if source.UserID != req.UserID || target.UserID != req.UserID {
		return nil, fmt.Errorf("%w: both wallets must belong to the caller", domain.ErrOwnershipMismatch)
	}
	if source.Currency == target.Currency {
		return nil, fmt.Errorf("%w: %s", domain.ErrSameCurrencyExchange, source.Currency)
	}
	if err := domain.ValidateAmount(req.Amount, source.Currency); err != nil {
		return nil, err
	}

	quote, err := e.rates.Resolve(ctx, source.Currency, target.Currency)
	if err != nil {
		if !errors.Is(err, domain.ErrRateUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err)
		}
		return nil, err
	}
	if err := quote.Validate(source.Currency, target.Currency); err != nil {
		return nil, err
	}

	return e.ExecuteExchange(ctx, ExchangeCommand{
		UserID:         req.UserID,
		SourceWalletID: req.SourceWalletID,
		TargetWalletID: req.TargetWalletID,
		Amount:         req.Amount,
		Rate:           quote.Rate,
		Note:           req.Note,
	})
}

// ExecuteExchange runs the atomic part of an exchange at a fixed rate. Every
// precondition is checked again against the locked rows.
func (e *Engine) ExecuteExchange(ctx context.Context, cmd ExchangeCommand) (*ExchangeResult, error) {
	if err := domain.ValidateAmount(cmd.Amount, ""); err != nil {
		return nil, err
	}
	if err := domain.ValidateRate(cmd.Rate); err != nil {
		return nil, err
	}

	var row *models.Transaction
	err := e.runInTx(ctx, func(tx repository.LedgerTx) error {
		locked, err := tx.LockWallets(ctx, cmd.SourceWalletID, cmd.TargetWalletID)
		if err != nil {
			return err
		}
		source, target := locked[cmd.SourceWalletID], locked[cmd.TargetWalletID]

		if source.UserID != cmd.UserID || target.UserID != cmd.UserID {
			return fmt.Errorf("%w: both wallets must belong to the caller", domain.ErrOwnershipMismatch)
		}
		if source.Currency == target.Currency {
			return fmt.Errorf("%w: %s", domain.ErrSameCurrencyExchange, source.Currency)
		}
		if err := requireActive(source, target); err != nil {
			return err
		}
		if err := domain.ValidateAmount(cmd.Amount, source.Currency); err != nil {
			return err
		}

		fee := e.fees.Fee(source.Currency, target.Currency, cmd.Amount)
		debit := cmd.Amount.Add(fee)
		if source.Balance.LessThan(debit) {
			return fmt.Errorf("%w: wallet %s has %s, needs %s", domain.ErrInsufficientFunds, source.ID, source.Balance, debit)
		}
		credit := domain.NewMoney(cmd.Amount, source.Currency).Convert(target.Currency, cmd.Rate)
		if !credit.Amount.IsPositive() {
			return fmt.Errorf("%w: %s %s converts to zero %s", domain.ErrInvalidAmount, cmd.Amount, source.Currency, target.Currency)
		}

		if _, err := tx.AdjustBalance(ctx, source.ID, &cmd.UserID, debit.Neg()); err != nil {
			return fmt.Errorf("debit source: %w", err)
		}
		if _, err := tx.AdjustBalance(ctx, target.ID, &cmd.UserID, credit.Amount); err != nil {
			return fmt.Errorf("credit target: %w", err)
		}

		row = &models.Transaction{
			Type:               domain.TxTypeExchange,
			UserID:             cmd.UserID,
			CounterpartyUserID: cmd.UserID,
			SourceWalletID:     source.ID,
			TargetWalletID:     target.ID,
			SourceCurrency:     source.Currency,
			TargetCurrency:     target.Currency,
			SourceAmount:       cmd.Amount,
			TargetAmount:       credit.Amount,
			FXRate:             cmd.Rate,
			FeeAmount:          fee,
			Note:               cmd.Note,
		}
		_, err = tx.AppendTransaction(ctx, row)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.committed(row)
	e.publish(ctx, notify.Event{
		UserID: cmd.UserID,
		Kind:   domain.NotificationKindTransaction,
		Title:  "Exchange completed",
		Body: fmt.Sprintf("Exchanged %s for %s",
			domain.NewMoney(row.SourceAmount, row.SourceCurrency),
			domain.NewMoney(row.TargetAmount, row.TargetCurrency)),
	})

	return &ExchangeResult{
		TransactionID:  row.ID,
		SourceCurrency: row.SourceCurrency,
		TargetCurrency: row.TargetCurrency,
		SourceAmount:   row.SourceAmount,
		TargetAmount:   row.TargetAmount,
		FXRate:         row.FXRate,
		FeeAmount:      row.FeeAmount,
	}, nil
}

// Transfer moves same-currency funds from a caller-owned wallet to any
// other wallet.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (res *TransferResult, err error) {
	defer func() { recordOutcome(domain.TxTypeTransfer, err) }()

	if err := domain.ValidateAmount(req.Amount, ""); err != nil {
		return nil, err
	}
	if req.SourceWalletID == req.TargetWalletID {
		return nil, domain.ErrSameWallet
	}
	source, target, err := e.readPair(ctx, req.SourceWalletID, req.TargetWalletID)
	if err != nil {
		return nil, err
	}
	if source.UserID != req.UserID {
		return nil, fmt.Errorf("%w: source wallet belongs to another user", domain.ErrOwnershipMismatch)
	}
	if source.Currency != target.Currency {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrCurrencyMismatch, source.Currency, target.Currency)
	}
	if err := domain.ValidateAmount(req.Amount, source.Currency); err != nil {
		return nil, err
	}

	var row *models.Transaction
	err = e.runInTx(ctx, func(tx repository.LedgerTx) error {
		locked, err := tx.LockWallets(ctx, req.SourceWalletID, req.TargetWalletID)
		if err != nil {
			return err
		}
		source, target := locked[req.SourceWalletID], locked[req.TargetWalletID]

		if source.UserID != req.UserID {
			return fmt.Errorf("%w: source wallet belongs to another user", domain.ErrOwnershipMismatch)
		}
		if source.Currency != target.Currency {
			return fmt.Errorf("%w: %s to %s", domain.ErrCurrencyMismatch, source.Currency, target.Currency)
		}
		if err := requireActive(source, target); err != nil {
			return err
		}
		if source.Balance.LessThan(req.Amount) {
			return fmt.Errorf("%w: wallet %s has %s, needs %s", domain.ErrInsufficientFunds, source.ID, source.Balance, req.Amount)
		}

		if _, err := tx.AdjustBalance(ctx, source.ID, &req.UserID, req.Amount.Neg()); err != nil {
			return fmt.Errorf("debit source: %w", err)
		}
		if _, err := tx.AdjustBalance(ctx, target.ID, nil, req.Amount); err != nil {
			return fmt.Errorf("credit target: %w", err)
		}

		row = &models.Transaction{
			Type:               domain.TxTypeTransfer,
			UserID:             req.UserID,
			CounterpartyUserID: target.UserID,
			SourceWalletID:     source.ID,
			TargetWalletID:     target.ID,
			SourceCurrency:     source.Currency,
			TargetCurrency:     target.Currency,
			SourceAmount:       req.Amount,
			TargetAmount:       req.Amount,
			FXRate:             decimal.NewFromInt(1),
			FeeAmount:          decimal.Zero,
			Note:               req.Note,
		}
		_, err = tx.AppendTransaction(ctx, row)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.committed(row)
	amount := domain.NewMoney(row.SourceAmount, row.SourceCurrency)
	e.publish(ctx, notify.Event{
		UserID: row.UserID,
		Kind:   domain.NotificationKindTransaction,
		Title:  "Transfer sent",
		Body:   fmt.Sprintf("Sent %s", amount),
	})
	if row.CounterpartyUserID != row.UserID {
		e.publish(ctx, notify.Event{
			UserID: row.CounterpartyUserID,
			Kind:   domain.NotificationKindTransaction,
			Title:  "Transfer received",
			Body:   fmt.Sprintf("Received %s", amount),
		})
	}

	return &TransferResult{
		TransactionID:  row.ID,
		SourceCurrency: row.SourceCurrency,
		TargetCurrency: row.TargetCurrency,
		Amount:         row.SourceAmount,
	}, nil
}

// ListTransactions returns ledger rows where the user is either party,
// newest first.
func (e *Engine) ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, error) {
	filter.Limit = repository.ClampLimit(filter.Limit)
	return e.store.ListTransactionsForUser(ctx, userID, filter)
}

func (e *Engine) readPair(ctx context.Context, sourceID, targetID uuid.UUID) (models.Wallet, models.Wallet, error) {
	source, err := e.store.FindWalletByID(ctx, sourceID)
	if err != nil {
		return models.Wallet{}, models.Wallet{}, fmt.Errorf("source wallet: %w", err)
	}
	target, err := e.store.FindWalletByID(ctx, targetID)
	if err != nil {
		return models.Wallet{}, models.Wallet{}, fmt.Errorf("target wallet: %w", err)
	}
	return source, target, nil
}

func (e *Engine) runInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()
	return e.store.RunInTx(ctx, fn)
}

func (e *Engine) committed(row *models.Transaction) {
	zap.L().Info("transaction committed",
		zap.Int64("transaction_id", row.ID),
		zap.String("type", row.Type),
		zap.String("source_wallet_id", row.SourceWalletID.String()),
		zap.String("target_wallet_id", row.TargetWalletID.String()),
		zap.String("source_amount", row.SourceAmount.String()),
		zap.String("target_amount", row.TargetAmount.String()),
	)
}

// publish hands ev to the outbox. Failures are logged and never reach the
// caller; the ledger has already committed.
func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		zap.L().Warn("notification publish failed",
			zap.String("user_id", ev.UserID.String()),
			zap.String("title", ev.Title),
			zap.Error(err),
		)
	}
}

func requireActive(wallets ...models.Wallet) error {
	for _, w := range wallets {
		if w.Status != domain.WalletStatusActive {
			return fmt.Errorf("%w: wallet %s is %s", domain.ErrWalletInactive, w.ID, w.Status)
		}
	}
	return nil
}

func recordOutcome(txType string, err error) {
	if err == nil {
		observability.IncrementTransaction(txType, "ok")
		return
	}
	observability.IncrementTransaction(txType, domain.Code(err))
}
