package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/notify"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const creditType = "credit"

type CreditRequest struct {
	WalletID uuid.UUID
	ActorID  *uuid.UUID
	Amount   decimal.Decimal
	Reason   string
}

// Credit tops up a wallet from outside the ledger's transfer graph, e.g. a
// deposit confirmed by an operator. The balance change and its credit row
// commit together.
func (e *Engine) Credit(ctx context.Context, req CreditRequest) (credit *models.Credit, err error) {
	defer func() { recordOutcome(creditType, err) }()

	if err := domain.ValidateAmount(req.Amount, ""); err != nil {
		return nil, err
	}

	var owner uuid.UUID
	var currency string
	err = e.runInTx(ctx, func(tx repository.LedgerTx) error {
		locked, err := tx.LockWallets(ctx, req.WalletID)
		if err != nil {
			return err
		}
		w := locked[req.WalletID]
		if w.Status == domain.WalletStatusClosed {
			return fmt.Errorf("%w: wallet %s is closed", domain.ErrWalletInactive, w.ID)
		}
		if err := domain.ValidateAmount(req.Amount, w.Currency); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, w.ID, nil, req.Amount); err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}
		credit = &models.Credit{
			WalletID: w.ID,
			ActorID:  req.ActorID,
			Amount:   req.Amount,
			Reason:   strings.TrimSpace(req.Reason),
		}
		if _, err := tx.RecordCredit(ctx, credit); err != nil {
			return err
		}
		owner, currency = w.UserID, w.Currency
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("wallet credited",
		zap.Int64("credit_id", credit.ID),
		zap.String("wallet_id", credit.WalletID.String()),
		zap.String("amount", credit.Amount.String()),
	)
	e.publish(ctx, notify.Event{
		UserID: owner,
		Kind:   domain.NotificationKindCredit,
		Title:  "Wallet credited",
		Body:   fmt.Sprintf("Your wallet was credited with %s", domain.NewMoney(credit.Amount, currency)),
	})
	return credit, nil
}
