package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrLockOrder is returned when a unit tries to lock a wallet that sorts
// before one it already holds.
var ErrLockOrder = errors.New("wallet lock order violated")

type rateRow struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// MemoryStore is an in-process Store used by tests and local runs without
// Postgres. Each wallet has its own lock, so units over disjoint wallets run
// in parallel; committed state is guarded by mu.
type MemoryStore struct {
	mu            sync.RWMutex
	wallets       map[uuid.UUID]models.Wallet
	transactions  []models.Transaction
	credits       []models.Credit
	notifications []models.Notification
	rates         map[string][]rateRow
	idempotency   map[string]IdempotencyKey

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}

	nextTxID     atomic.Int64
	nextCreditID atomic.Int64
	nextNotifyID atomic.Int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:     make(map[uuid.UUID]models.Wallet),
		rates:       make(map[string][]rateRow),
		idempotency: make(map[string]IdempotencyKey),
		locks:       make(map[uuid.UUID]chan struct{}),
	}
}

func (m *MemoryStore) walletLock(id uuid.UUID) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[id] = l
	}
	return l
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// SeedWallet inserts or replaces a wallet, bypassing the ledger. Only
// fixtures use it.
func (m *MemoryStore) SeedWallet(w models.Wallet) models.Wallet {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = domain.WalletStatusActive
	}
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	m.mu.Lock()
	m.wallets[w.ID] = w
	m.mu.Unlock()
	return w
}

func (m *MemoryStore) FindWalletByID(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[id]
	if !ok {
		return models.Wallet{}, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	return w, nil
}

func (m *MemoryStore) ListWalletsForUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (m *MemoryStore) ListTransactionsForUser(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, error) {
	limit := ClampLimit(filter.Limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transaction{}
	for i := len(m.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.transactions[i]
		if t.UserID != userID && t.CounterpartyUserID != userID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) ListTransactionsForWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error) {
	limit = ClampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transaction{}
	for i := len(m.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.transactions[i]
		if t.SourceWalletID == walletID || t.TargetWalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) WalletDrift(ctx context.Context) ([]models.WalletDrift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expected := make(map[uuid.UUID]decimal.Decimal, len(m.wallets))
	for _, t := range m.transactions {
		expected[t.SourceWalletID] = expected[t.SourceWalletID].Sub(t.SourceAmount.Add(t.FeeAmount))
		expected[t.TargetWalletID] = expected[t.TargetWalletID].Add(t.TargetAmount)
	}
	for _, c := range m.credits {
		expected[c.WalletID] = expected[c.WalletID].Add(c.Amount)
	}
	var drift []models.WalletDrift
	for id, w := range m.wallets {
		if !w.Balance.Equal(expected[id]) {
			drift = append(drift, models.WalletDrift{
				WalletID: id,
				Currency: w.Currency,
				Balance:  w.Balance,
				Expected: expected[id],
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool {
		return bytes.Compare(drift[i].WalletID[:], drift[j].WalletID[:]) < 0
	})
	return drift, nil
}

// Transactions returns a copy of every ledger row ordered by id.
func (m *MemoryStore) Transactions() []models.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Transaction(nil), m.transactions...)
}

// Notifications returns a copy of every stored notification.
func (m *MemoryStore) Notifications() []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Notification(nil), m.notifications...)
}

func (m *MemoryStore) CreateWallets(ctx context.Context, wallets []models.Wallet) ([]models.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	held := make(map[string]bool)
	for _, w := range m.wallets {
		held[w.UserID.String()+"/"+w.Currency] = true
	}
	now := time.Now().UTC()
	var created []models.Wallet
	for _, w := range wallets {
		key := w.UserID.String() + "/" + w.Currency
		if held[key] {
			continue
		}
		held[key] = true
		w.Balance = decimal.Zero
		w.CreatedAt = now
		w.UpdatedAt = now
		m.wallets[w.ID] = w
		created = append(created, w)
	}
	return created, nil
}

func (m *MemoryStore) SaveRates(ctx context.Context, base string, rates map[string]decimal.Decimal, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for quote, rate := range rates {
		key := base + "/" + quote
		m.rates[key] = append(m.rates[key], rateRow{rate: rate, fetchedAt: fetchedAt.UTC()})
	}
	return nil
}

func (m *MemoryStore) LatestRate(ctx context.Context, base, quote string) (decimal.Decimal, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.rates[base+"/"+quote]
	if len(rows) == 0 {
		return decimal.Zero, time.Time{}, ErrNotFound
	}
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.fetchedAt.After(latest.fetchedAt) {
			latest = r
		}
	}
	return latest.rate, latest.fetchedAt, nil
}

func (m *MemoryStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	n.ID = m.nextNotifyID.Add(1)
	n.CreatedAt = time.Now().UTC()
	m.mu.Lock()
	m.notifications = append(m.notifications, *n)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListNotificationsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	limit = ClampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Notification{}
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].UserID == userID {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.idempotency[key]
	if !ok {
		return IdempotencyKey{}, ErrNotFound
	}
	return k, nil
}

// ReserveIdempotencyKey returns ErrNotFound when the key is already taken,
// mirroring the empty RETURNING of the Postgres query.
func (m *MemoryStore) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.idempotency[arg.IdempotencyKey]; taken {
		return IdempotencyKey{}, ErrNotFound
	}
	k := IdempotencyKey{IdempotencyKey: arg.IdempotencyKey, RequestHash: arg.RequestHash, InProgress: true}
	m.idempotency[arg.IdempotencyKey] = k
	return k, nil
}

func (m *MemoryStore) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.idempotency[arg.IdempotencyKey]
	if !ok || k.RequestHash != arg.RequestHash {
		return IdempotencyKey{}, ErrNotFound
	}
	k.ResponseStatus = arg.ResponseStatus
	k.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	k.ContentType = arg.ContentType
	k.InProgress = false
	m.idempotency[arg.IdempotencyKey] = k
	return k, nil
}

func (m *MemoryStore) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.idempotency[key]; ok && k.InProgress && k.RequestHash == requestHash {
		delete(m.idempotency, key)
	}
	return nil
}

// RunInTx runs fn against staged copies of the wallets it locks. Staged
// changes become visible only if fn returns nil; wallet locks are released
// when the unit ends either way.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return timedOut(err)
	}
	tx := &memoryTx{
		store:  m,
		staged: make(map[uuid.UUID]models.Wallet),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return timedOut(err)
	}
	m.commit(tx)
	return nil
}

func (m *MemoryStore) commit(tx *memoryTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for id, w := range tx.staged {
		if tx.dirty[id] {
			w.UpdatedAt = now
			m.wallets[id] = w
		}
	}
	for _, t := range tx.transactions {
		// ids are allocated at append time, so a unit that appended earlier
		// may commit later; keep the ledger ordered by id.
		i := sort.Search(len(m.transactions), func(i int) bool { return m.transactions[i].ID > t.ID })
		m.transactions = append(m.transactions, models.Transaction{})
		copy(m.transactions[i+1:], m.transactions[i:])
		m.transactions[i] = t
	}
	m.credits = append(m.credits, tx.credits...)
}

type memoryTx struct {
	store        *MemoryStore
	held         []uuid.UUID
	staged       map[uuid.UUID]models.Wallet
	dirty        map[uuid.UUID]bool
	transactions []models.Transaction
	credits      []models.Credit
}

func (t *memoryTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		<-t.store.walletLock(t.held[i])
	}
	t.held = nil
}

func (t *memoryTx) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	ordered := SortWalletIDs(ids)
	out := make(map[uuid.UUID]models.Wallet, len(ordered))
	for _, id := range ordered {
		if w, ok := t.staged[id]; ok {
			out[id] = w
			continue
		}
		if n := len(t.held); n > 0 && bytes.Compare(id[:], t.held[n-1][:]) < 0 {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockOrder, id, t.held[n-1])
		}
		t.store.mu.RLock()
		_, exists := t.store.wallets[id]
		t.store.mu.RUnlock()
		if !exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
		}

		select {
		case t.store.walletLock(id) <- struct{}{}:
		case <-ctx.Done():
			return nil, timedOut(ctx.Err())
		}
		t.held = append(t.held, id)

		t.store.mu.RLock()
		w := t.store.wallets[id]
		t.store.mu.RUnlock()
		t.staged[id] = w
		out[id] = w
	}
	return out, nil
}

func (t *memoryTx) AdjustBalance(ctx context.Context, walletID uuid.UUID, expectedOwner *uuid.UUID, delta decimal.Decimal) (models.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return models.Wallet{}, err
	}
	w, ok := t.staged[walletID]
	if !ok {
		if _, err := t.store.FindWalletByID(ctx, walletID); err != nil {
			return models.Wallet{}, err
		}
		return models.Wallet{}, fmt.Errorf("wallet %s adjusted without a lock", walletID)
	}
	if expectedOwner != nil && w.UserID != *expectedOwner {
		return models.Wallet{}, fmt.Errorf("%w: wallet %s", domain.ErrOwnershipMismatch, walletID)
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return models.Wallet{}, fmt.Errorf("%w: wallet %s has %s", domain.ErrInsufficientFunds, walletID, w.Balance)
	}
	w.Balance = next
	t.staged[walletID] = w
	t.markDirty(walletID)
	return w, nil
}

func (t *memoryTx) markDirty(id uuid.UUID) {
	if t.dirty == nil {
		t.dirty = make(map[uuid.UUID]bool)
	}
	t.dirty[id] = true
}

// AppendTransaction stages the row. Like a database sequence, ids are
// allocated immediately and are lost if the unit rolls back.
func (t *memoryTx) AppendTransaction(ctx context.Context, tx *models.Transaction) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tx.ID = t.store.nextTxID.Add(1)
	tx.CreatedAt = time.Now().UTC()
	t.transactions = append(t.transactions, *tx)
	return tx.ID, nil
}

func (t *memoryTx) RecordCredit(ctx context.Context, credit *models.Credit) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	credit.ID = t.store.nextCreditID.Add(1)
	credit.CreatedAt = time.Now().UTC()
	t.credits = append(t.credits, *credit)
	return credit.ID, nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, walletID uuid.UUID, status string) (models.Wallet, error) {
	w, ok := t.staged[walletID]
	if !ok {
		if _, err := t.store.FindWalletByID(ctx, walletID); err != nil {
			return models.Wallet{}, err
		}
		return models.Wallet{}, fmt.Errorf("wallet %s updated without a lock", walletID)
	}
	w.Status = status
	t.staged[walletID] = w
	t.markDirty(walletID)
	return w, nil
}
