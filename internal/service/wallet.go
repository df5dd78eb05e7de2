package service

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/google/uuid"
)

const addressAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// WalletService exposes read access to a user's wallets and provisions the
// default set of currency wallets.
type WalletService struct {
	store      WalletStore
	currencies []string
}

func NewWalletService(store WalletStore, currencies []string) *WalletService {
	if len(currencies) == 0 {
		currencies = domain.DefaultCurrencies
	}
	return &WalletService{store: store, currencies: currencies}
}

// Currencies lists the currencies every user gets a wallet in.
func (s *WalletService) Currencies() []string {
	return append([]string(nil), s.currencies...)
}

func (s *WalletService) ListWallets(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	wallets, err := s.store.ListWalletsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallets == nil {
		wallets = []models.Wallet{}
	}
	return wallets, nil
}

// GetWallet returns a wallet owned by userID. Wallets of other users are
// reported as not found.
func (s *WalletService) GetWallet(ctx context.Context, userID, walletID uuid.UUID) (models.Wallet, error) {
	w, err := s.store.FindWalletByID(ctx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	if w.UserID != userID {
		return models.Wallet{}, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, walletID)
	}
	return w, nil
}

// WalletTransactions lists ledger rows touching one of the user's wallets.
func (s *WalletService) WalletTransactions(ctx context.Context, userID, walletID uuid.UUID, limit int) ([]models.Transaction, error) {
	if _, err := s.GetWallet(ctx, userID, walletID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsForWallet(ctx, walletID, limit)
}

// ProvisionDefaultWallets creates a zero-balance wallet for every configured
// currency the user does not hold yet. Calling it again is a no-op.
func (s *WalletService) ProvisionDefaultWallets(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	wallets := make([]models.Wallet, 0, len(s.currencies))
	for _, currency := range s.currencies {
		address, err := NewWalletAddress(currency)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, models.Wallet{
			ID:       uuid.New(),
			UserID:   userID,
			Currency: currency,
			Status:   domain.WalletStatusActive,
			Address:  address,
		})
	}
	created, err := s.store.CreateWallets(ctx, wallets)
	if err != nil {
		return nil, fmt.Errorf("provision wallets: %w", err)
	}
	if created == nil {
		created = []models.Wallet{}
	}
	return created, nil
}

// NewWalletAddress returns an external wallet reference such as
// FXW-USD-7QK2M9ZD.
func NewWalletAddress(currency string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate wallet address: %w", err)
	}
	for i, b := range buf {
		buf[i] = addressAlphabet[int(b)%len(addressAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", domain.WalletAddressPrefix, currency, buf), nil
}
