package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgCheckViolation       = "23514"
	pgUniqueViolation      = "23505"
)

// Store is the Postgres wallet store and ledger.
type Store struct {
	db         *pgxpool.Pool
	queries    *Queries
	maxRetries int
}

type StoreOption func(*Store)

// WithMaxRetries bounds how often a unit is retried after a serialization
// failure or deadlock.
func WithMaxRetries(n int) StoreOption {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool, opts ...StoreOption) *Store {
	s := &Store{
		db:         db,
		queries:    New(db),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() *Queries {
	return s.queries
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// RunInTx executes fn within a database transaction. Serialization failures
// and deadlocks are retried with jittered backoff; any other error rolls the
// unit back and is returned.
func (s *Store) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isRetryable(err) || attempt >= s.maxRetries {
			break
		}
		observability.StoreRetries.Inc()
		zap.L().Warn("retrying ledger transaction",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		backoff := time.Duration(10*(attempt+1))*time.Millisecond + time.Duration(rand.Intn(10))*time.Millisecond
		select {
		case <-ctx.Done():
			return classify(ctx.Err())
		case <-time.After(backoff):
		}
	}
	return classify(err)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgLedgerTx{q: s.queries.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// classify wraps connectivity failures and expired deadlines as
// domain.ErrStoreUnavailable. Domain errors and cancellation pass through
// untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timedOut(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57") {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func walletLookupErr(id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	return classify(err)
}

func (s *Store) FindWalletByID(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	w, err := s.queries.GetWallet(ctx, id)
	if err != nil {
		return models.Wallet{}, walletLookupErr(id, err)
	}
	return w, nil
}

func (s *Store) ListWalletsForUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	wallets, err := s.queries.ListWalletsByUser(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	return wallets, nil
}

func (s *Store) ListTransactionsForUser(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, error) {
	txs, err := s.queries.ListTransactionsByUser(ctx, userID, filter.Type, ClampLimit(filter.Limit))
	if err != nil {
		return nil, classify(err)
	}
	return txs, nil
}

func (s *Store) ListTransactionsForWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error) {
	txs, err := s.queries.ListTransactionsByWallet(ctx, walletID, ClampLimit(limit))
	if err != nil {
		return nil, classify(err)
	}
	return txs, nil
}

func (s *Store) WalletDrift(ctx context.Context) ([]models.WalletDrift, error) {
	drift, err := s.queries.GetWalletDrift(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return drift, nil
}

// CreateWallets inserts the given wallets, skipping currencies the user
// already holds. It returns the wallets that were actually created.
func (s *Store) CreateWallets(ctx context.Context, wallets []models.Wallet) ([]models.Wallet, error) {
	var created []models.Wallet
	err := s.RunInTx(ctx, func(tx LedgerTx) error {
		created = created[:0]
		q := tx.(*pgLedgerTx).q
		for i := range wallets {
			w := wallets[i]
			ok, err := q.InsertWallet(ctx, &w)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
					return fmt.Errorf("wallet address collision for %s: %w", w.Currency, err)
				}
				return err
			}
			if ok {
				created = append(created, w)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) SaveRates(ctx context.Context, base string, rates map[string]decimal.Decimal, fetchedAt time.Time) error {
	if len(rates) == 0 {
		return nil
	}
	return classify(s.queries.InsertFxRates(ctx, base, rates, fetchedAt))
}

func (s *Store) LatestRate(ctx context.Context, base, quote string) (decimal.Decimal, time.Time, error) {
	rate, at, err := s.queries.GetLatestFxRate(ctx, base, quote)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, time.Time{}, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, time.Time{}, classify(err)
	}
	return rate, at, nil
}

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	return classify(s.queries.InsertNotification(ctx, n))
}

func (s *Store) ListNotificationsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	out, err := s.queries.ListNotificationsByUser(ctx, userID, ClampLimit(limit))
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// pgLedgerTx implements LedgerTx on top of one pgx transaction.
type pgLedgerTx struct {
	q *Queries
}

func (t *pgLedgerTx) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	locked := make(map[uuid.UUID]models.Wallet, len(ids))
	for _, id := range SortWalletIDs(ids) {
		w, err := t.q.LockWallet(ctx, id)
		if err != nil {
			return nil, walletLookupErr(id, err)
		}
		locked[id] = w
	}
	return locked, nil
}

func (t *pgLedgerTx) AdjustBalance(ctx context.Context, walletID uuid.UUID, expectedOwner *uuid.UUID, delta decimal.Decimal) (models.Wallet, error) {
	w, err := t.q.AdjustWalletBalance(ctx, walletID, expectedOwner, delta)
	if err == nil {
		return w, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return models.Wallet{}, fmt.Errorf("%w: wallet %s", domain.ErrInsufficientFunds, walletID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Wallet{}, err
	}

	// The conditional update matched nothing; find out which condition failed.
	current, lookupErr := t.q.GetWallet(ctx, walletID)
	if lookupErr != nil {
		return models.Wallet{}, walletLookupErr(walletID, lookupErr)
	}
	if expectedOwner != nil && current.UserID != *expectedOwner {
		return models.Wallet{}, fmt.Errorf("%w: wallet %s", domain.ErrOwnershipMismatch, walletID)
	}
	return models.Wallet{}, fmt.Errorf("%w: wallet %s has %s", domain.ErrInsufficientFunds, walletID, current.Balance)
}

func (t *pgLedgerTx) AppendTransaction(ctx context.Context, tx *models.Transaction) (int64, error) {
	if err := t.q.InsertTransaction(ctx, tx); err != nil {
		return 0, fmt.Errorf("append ledger row: %w", err)
	}
	return tx.ID, nil
}

func (t *pgLedgerTx) RecordCredit(ctx context.Context, credit *models.Credit) (int64, error) {
	if err := t.q.InsertWalletCredit(ctx, credit); err != nil {
		return 0, fmt.Errorf("record credit: %w", err)
	}
	return credit.ID, nil
}

func (t *pgLedgerTx) UpdateStatus(ctx context.Context, walletID uuid.UUID, status string) (models.Wallet, error) {
	w, err := t.q.UpdateWalletStatus(ctx, walletID, status)
	if err != nil {
		return models.Wallet{}, walletLookupErr(walletID, err)
	}
	return w, nil
}
