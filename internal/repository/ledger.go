package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups that are not wallet lookups (rates, keys).
var ErrNotFound = errors.New("not found")

// timedOut marks an expired deadline as domain.ErrStoreUnavailable, keeping
// context.DeadlineExceeded in the chain. Other errors are returned as is.
func timedOut(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

// Reader is the read side of the wallet store and ledger. Reads are not part of
// any atomic unit and observe only committed state.
type Reader interface {
	FindWalletByID(ctx context.Context, id uuid.UUID) (models.Wallet, error)
	ListWalletsForUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error)
	ListTransactionsForUser(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, error)
	ListTransactionsForWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error)
	WalletDrift(ctx context.Context) ([]models.WalletDrift, error)
}

// LedgerTx is the set of mutations available inside one atomic unit. It is only
// obtainable through RunInTx, so balances can never be changed outside a unit
// that also owns the matching ledger write.
type LedgerTx interface {
	// LockWallets locks the given wallet rows for the rest of the unit and
	// returns their current state. Rows are always locked in ascending id
	// order (see SortWalletIDs); callers must lock every wallet they intend to
	// touch in a single call so two units can never wait on each other.
	LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error)

	// AdjustBalance applies a signed delta to a locked wallet. When
	// expectedOwner is non-nil the wallet must belong to that user.
	AdjustBalance(ctx context.Context, walletID uuid.UUID, expectedOwner *uuid.UUID, delta decimal.Decimal) (models.Wallet, error)

	// AppendTransaction writes an immutable ledger row and returns its id.
	AppendTransaction(ctx context.Context, tx *models.Transaction) (int64, error)

	// RecordCredit writes an append-only administrative credit row.
	RecordCredit(ctx context.Context, credit *models.Credit) (int64, error)

	// UpdateStatus sets the status of a locked wallet.
	UpdateStatus(ctx context.Context, walletID uuid.UUID, status string) (models.Wallet, error)
}

// RateHistory persists fetched exchange rates.
type RateHistory interface {
	SaveRates(ctx context.Context, base string, rates map[string]decimal.Decimal, fetchedAt time.Time) error
	LatestRate(ctx context.Context, base, quote string) (decimal.Decimal, time.Time, error)
}

// NotificationWriter persists user notifications.
type NotificationWriter interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// NotificationReader lists a user's notifications, newest first.
type NotificationReader interface {
	ListNotificationsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
}

// SortWalletIDs returns ids deduplicated and ordered by their byte value.
// This is the global lock acquisition order for wallet rows.
func SortWalletIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit bounds a caller supplied list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
