package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var walletTransitions = map[string]map[string]struct{}{
	domain.WalletStatusActive: {
		domain.WalletStatusFrozen: {},
		domain.WalletStatusClosed: {},
	},
	domain.WalletStatusFrozen: {
		domain.WalletStatusActive: {},
		domain.WalletStatusClosed: {},
	},
	domain.WalletStatusClosed: {},
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func canTransition(current, next string) bool {
	nextStates, ok := walletTransitions[normalizeStatus(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeStatus(next)]
	return ok
}

// SetWalletStatus moves a wallet through active <-> frozen -> closed. Only
// empty wallets can be closed.
func (e *Engine) SetWalletStatus(ctx context.Context, walletID uuid.UUID, status string, actorID *uuid.UUID) (models.Wallet, error) {
	next := normalizeStatus(status)
	if _, known := walletTransitions[next]; !known {
		return models.Wallet{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidStatusTransition, status)
	}

	var updated models.Wallet
	var previous string
	err := e.runInTx(ctx, func(tx repository.LedgerTx) error {
		locked, err := tx.LockWallets(ctx, walletID)
		if err != nil {
			return err
		}
		current := locked[walletID]
		previous = current.Status
		if normalizeStatus(current.Status) == next {
			updated = current
			return nil
		}
		if !canTransition(current.Status, next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, next)
		}
		if next == domain.WalletStatusClosed && !current.Balance.IsZero() {
			return fmt.Errorf("%w: wallet %s still holds %s", domain.ErrInvalidStatusTransition, walletID, current.Balance)
		}
		updated, err = tx.UpdateStatus(ctx, walletID, next)
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}

	fields := []zap.Field{
		zap.String("wallet_id", walletID.String()),
		zap.String("prev_status", previous),
		zap.String("next_status", updated.Status),
	}
	if actorID != nil {
		fields = append(fields, zap.String("actor_id", actorID.String()))
	}
	zap.L().Info("wallet status changed", fields...)
	return updated, nil
}
