package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store repository.Reader
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store repository.Reader) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that every wallet balance equals its credits plus incoming
// ledger amounts minus outgoing amounts and fees. Drift is logged and
// counted; it is not an error of the run itself.
func (s *ReconciliationService) Run(ctx context.Context) ([]models.WalletDrift, error) {
	drift, err := s.store.WalletDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("run wallet drift query: %w", err)
	}

	if len(drift) == 0 {
		zap.L().Info("Ledger Balanced")
		return []models.WalletDrift{}, nil
	}

	for _, d := range drift {
		observability.IncrementLedgerDrift(d.Currency)
		zap.L().Error("CRITICAL: wallet balance does not match ledger",
			zap.String("wallet_id", d.WalletID.String()),
			zap.String("currency", d.Currency),
			zap.String("balance", d.Balance.String()),
			zap.String("expected", d.Expected.String()),
		)
	}
	return drift, nil
}
