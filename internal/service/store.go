package service

import (
	"context"

	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	repository.Reader
	RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error
}

// WalletStore adds wallet provisioning to QueryStore.
type WalletStore interface {
	QueryStore
	CreateWallets(ctx context.Context, wallets []models.Wallet) ([]models.Wallet, error)
}
