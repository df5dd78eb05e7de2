package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Queries holds every SQL statement used by the service.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const walletColumns = `id, user_id, currency, balance::text, status, address, created_at, updated_at`

func scanWallet(row pgx.Row) (models.Wallet, error) {
	var w models.Wallet
	var balance string
	if err := row.Scan(&w.ID, &w.UserID, &w.Currency, &balance, &w.Status, &w.Address, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return models.Wallet{}, err
	}
	dec, err := decimal.NewFromString(balance)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("parse wallet balance %q: %w", balance, err)
	}
	w.Balance = dec
	return w, nil
}

func collectWallets(rows pgx.Rows) ([]models.Wallet, error) {
	defer rows.Close()
	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// InsertWallet creates a zero-balance wallet. It reports false when the user
// already has a wallet in that currency.
func (q *Queries) InsertWallet(ctx context.Context, w *models.Wallet) (bool, error) {
	const query = `
		INSERT INTO wallets (id, user_id, currency, balance, status, address, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id, currency) DO NOTHING
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, w.ID, w.UserID, w.Currency, w.Status, w.Address).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.Balance = decimal.Zero
	return true, nil
}

func (q *Queries) GetWallet(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (q *Queries) ListWalletsByUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	rows, err := q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY currency ASC`, userID)
	if err != nil {
		return nil, err
	}
	return collectWallets(rows)
}

// LockWallet takes a row lock on the wallet for the enclosing transaction.
func (q *Queries) LockWallet(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

// AdjustWalletBalance adds delta to the balance when the result stays
// non-negative and the optional owner matches. No row means one of those
// conditions failed.
func (q *Queries) AdjustWalletBalance(ctx context.Context, id uuid.UUID, owner *uuid.UUID, delta decimal.Decimal) (models.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $2::numeric, updated_at = NOW()
		WHERE id = $1
		  AND ($3::uuid IS NULL OR user_id = $3::uuid)
		  AND balance + $2::numeric >= 0
		RETURNING ` + walletColumns
	return scanWallet(q.db.QueryRow(ctx, query, id, delta.String(), owner))
}

func (q *Queries) UpdateWalletStatus(ctx context.Context, id uuid.UUID, status string) (models.Wallet, error) {
	query := `UPDATE wallets SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + walletColumns
	return scanWallet(q.db.QueryRow(ctx, query, id, status))
}

const transactionColumns = `id, type, user_id, counterparty_user_id, source_wallet_id, target_wallet_id,
	source_currency, target_currency, source_amount::text, target_amount::text, fx_rate::text,
	fee_amount::text, note, created_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	var source, target, rate, fee string
	err := row.Scan(&t.ID, &t.Type, &t.UserID, &t.CounterpartyUserID, &t.SourceWalletID, &t.TargetWalletID,
		&t.SourceCurrency, &t.TargetCurrency, &source, &target, &rate, &fee, &t.Note, &t.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{{source, &t.SourceAmount}, {target, &t.TargetAmount}, {rate, &t.FXRate}, {fee, &t.FeeAmount}} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("parse transaction %d amount %q: %w", t.ID, f.raw, err)
		}
		*f.dst = d
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (q *Queries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	const query = `
		INSERT INTO transactions (type, user_id, counterparty_user_id, source_wallet_id, target_wallet_id,
			source_currency, target_currency, source_amount, target_amount, fx_rate, fee_amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, NOW())
		RETURNING id, created_at`
	return q.db.QueryRow(ctx, query,
		t.Type, t.UserID, t.CounterpartyUserID, t.SourceWalletID, t.TargetWalletID,
		t.SourceCurrency, t.TargetCurrency,
		t.SourceAmount.String(), t.TargetAmount.String(), t.FXRate.String(), t.FeeAmount.String(),
		t.Note,
	).Scan(&t.ID, &t.CreatedAt)
}

func (q *Queries) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, txType string, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (user_id = $1 OR counterparty_user_id = $1)
		  AND ($2 = '' OR type = $2)
		ORDER BY id DESC
		LIMIT $3`
	rows, err := q.db.Query(ctx, query, userID, txType, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *Queries) ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_wallet_id = $1 OR target_wallet_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := q.db.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *Queries) InsertWalletCredit(ctx context.Context, c *models.Credit) error {
	const query = `
		INSERT INTO wallet_credits (wallet_id, actor_id, amount, reason, created_at)
		VALUES ($1, $2, $3::numeric, $4, NOW())
		RETURNING id, created_at`
	return q.db.QueryRow(ctx, query, c.WalletID, c.ActorID, c.Amount.String(), c.Reason).Scan(&c.ID, &c.CreatedAt)
}

// GetWalletDrift lists wallets whose balance differs from
// credits + incoming ledger amounts - outgoing ledger amounts and fees.
func (q *Queries) GetWalletDrift(ctx context.Context) ([]models.WalletDrift, error) {
	const query = `
		WITH movements AS (
			SELECT source_wallet_id AS wallet_id, -(source_amount + fee_amount) AS delta FROM transactions
			UNION ALL
			SELECT target_wallet_id, target_amount FROM transactions
			UNION ALL
			SELECT wallet_id, amount FROM wallet_credits
		)
		SELECT w.id, w.currency, w.balance::text, COALESCE(SUM(m.delta), 0)::text
		FROM wallets w
		LEFT JOIN movements m ON m.wallet_id = w.id
		GROUP BY w.id, w.currency, w.balance
		HAVING w.balance <> COALESCE(SUM(m.delta), 0)
		ORDER BY w.id`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []models.WalletDrift
	for rows.Next() {
		var d models.WalletDrift
		var balance, expected string
		if err := rows.Scan(&d.WalletID, &d.Currency, &balance, &expected); err != nil {
			return nil, err
		}
		if d.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		if d.Expected, err = decimal.NewFromString(expected); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

// InsertFxRates stores one snapshot of rates for base in a single round trip.
func (q *Queries) InsertFxRates(ctx context.Context, base string, rates map[string]decimal.Decimal, fetchedAt time.Time) error {
	batch := &pgx.Batch{}
	for quote, rate := range rates {
		batch.Queue(`
			INSERT INTO fx_rates (base_currency, quote_currency, rate, fetched_at)
			VALUES ($1, $2, $3::numeric, $4)
			ON CONFLICT (base_currency, quote_currency, fetched_at) DO NOTHING`,
			base, quote, rate.String(), fetchedAt.UTC())
	}
	results := q.db.SendBatch(ctx, batch)
	defer results.Close()
	for range rates {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) GetLatestFxRate(ctx context.Context, base, quote string) (decimal.Decimal, time.Time, error) {
	const query = `
		SELECT rate::text, fetched_at
		FROM fx_rates
		WHERE base_currency = $1 AND quote_currency = $2
		ORDER BY fetched_at DESC
		LIMIT 1`
	var raw string
	var fetchedAt time.Time
	if err := q.db.QueryRow(ctx, query, base, quote).Scan(&raw, &fetchedAt); err != nil {
		return decimal.Zero, time.Time{}, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse fx rate %q: %w", raw, err)
	}
	return rate, fetchedAt, nil
}

func (q *Queries) InsertNotification(ctx context.Context, n *models.Notification) error {
	const query = `
		INSERT INTO notifications (user_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`
	return q.db.QueryRow(ctx, query, n.UserID, n.Kind, n.Title, n.Body).Scan(&n.ID, &n.CreatedAt)
}

func (q *Queries) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, kind, title, body, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

func scanIdempotencyKey(row pgx.Row) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.ResponseStatus, &k.ResponseBody, &k.ContentType, &k.InProgress)
	return k, err
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, response_status, response_body, content_type, in_progress
		FROM idempotency_keys WHERE idempotency_key = $1`, key))
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey returns pgx.ErrNoRows when the key is already taken.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key, request_hash, response_status, response_body, content_type, in_progress`,
		arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path))
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING idempotency_key, request_hash, response_status, response_body, content_type, in_progress`,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash))
}

// ReleaseIdempotencyKey drops a reservation that never produced a response
// worth replaying.
func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := q.db.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress`,
		key, requestHash)
	return err
}
