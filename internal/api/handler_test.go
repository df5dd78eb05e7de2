package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/fx-wallet/internal/api"
	"github.com/ayo6706/fx-wallet/internal/api/middleware"
	"github.com/ayo6706/fx-wallet/internal/api/problem"
	"github.com/ayo6706/fx-wallet/internal/fx"
	"github.com/ayo6706/fx-wallet/internal/idempotency"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/notify"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/ayo6706/fx-wallet/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "fx-wallet-test"
	testJWTAudience = "fx-wallet-api-test"
)

type fixture struct {
	t       *testing.T
	store   *repository.MemoryStore
	outbox  *notify.Outbox
	wallets *service.WalletService
	server  *httptest.Server
	jwt     middleware.JWTConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	outbox := notify.NewOutbox(64)
	currencies := []string{"USD", "EUR"}

	rates := service.NewRateResolver(service.WithFallbackRates(fx.NewStatic()))
	engine := service.NewEngine(store, rates, service.WithPublisher(outbox))
	wallets := service.NewWalletService(store, currencies)
	jwtCfg := middleware.NewJWTConfig(testJWTSecret, testJWTIssuer, testJWTAudience)

	router := api.NewRouter(api.Dependencies{
		Logger:         zap.NewNop(),
		JWT:            jwtCfg,
		PublicRPS:      1000,
		WalletRPS:      1000,
		Store:          store,
		Idempotency:    idempotency.NewStore(nil, store, time.Hour),
		Engine:         engine,
		Wallets:        wallets,
		Rates:          rates,
		Reconciliation: service.NewReconciliationService(store),
		Currencies:     currencies,
	})
	server := httptest.NewServer(router.Routes())
	t.Cleanup(server.Close)

	return &fixture{t: t, store: store, outbox: outbox, wallets: wallets, server: server, jwt: jwtCfg}
}

func (f *fixture) token(userID uuid.UUID, role string) string {
	f.t.Helper()
	tok, err := f.jwt.IssueToken(userID, role, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) seed(owner uuid.UUID, currency, balance string) models.Wallet {
	return f.store.SeedWallet(models.Wallet{
		UserID:   owner,
		Currency: currency,
		Balance:  decimal.RequireFromString(balance),
		Address:  "FXW-" + currency + "-" + strings.ToUpper(uuid.NewString()[:8]),
	})
}

type call struct {
	method string
	path   string
	token  string
	key    string
	body   any
}

func (f *fixture) do(c call) *http.Response {
	f.t.Helper()
	var reader *bytes.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(c.method, f.server.URL+c.path, reader)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.key != "" {
		req.Header.Set(middleware.IdempotencyHeader, c.key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func requireProblem(t *testing.T, resp *http.Response, status int, slug string) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	details := decode[problem.Details](t, resp)
	assert.Equal(t, problem.Type(slug), details.Type)
	assert.Equal(t, status, details.Status)
}

func move(source, target uuid.UUID, amount string) map[string]any {
	return map[string]any{
		"source_wallet_id": source.String(),
		"target_wallet_id": target.String(),
		"amount":           amount,
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(call{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp = f.do(call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	resp := f.do(call{method: http.MethodGet, path: "/v1/wallets"})
	requireProblem(t, resp, http.StatusUnauthorized, "auth/authorization-header-required")

	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets", token: "not-a-jwt"})
	requireProblem(t, resp, http.StatusUnauthorized, "auth/invalid-token")

	other := middleware.NewJWTConfig("another-secret-0123456789-another", testJWTIssuer, testJWTAudience)
	forged, err := other.IssueToken(uuid.New(), middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets", token: forged})
	requireProblem(t, resp, http.StatusUnauthorized, "auth/invalid-token")
}

func TestProvisionWalletsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	tok := f.token(user, middleware.RoleUser)

	resp := f.do(call{method: http.MethodPost, path: "/v1/wallets", token: tok})
	requireProblem(t, resp, http.StatusBadRequest, "idempotency/missing-key")

	resp = f.do(call{method: http.MethodPost, path: "/v1/wallets", token: tok, key: "prov-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[[]models.Wallet](t, resp)
	require.Len(t, created, 2)

	resp = f.do(call{method: http.MethodPost, path: "/v1/wallets", token: tok, key: "prov-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "store", resp.Header.Get("X-Idempotent-Replay"))
	replayed := decode[[]models.Wallet](t, resp)
	assert.Equal(t, created[0].ID, replayed[0].ID)

	resp = f.do(call{method: http.MethodPost, path: "/v1/wallets", token: tok, key: "prov-2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Wallet](t, resp))

	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets", token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]models.Wallet](t, resp)
	assert.Len(t, listed, 2)
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	f := newFixture(t)
	alice, bob := uuid.New(), uuid.New()

	resp := f.do(call{method: http.MethodPost, path: "/v1/wallets", token: f.token(alice, middleware.RoleUser), key: "shared"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(call{method: http.MethodPost, path: "/v1/wallets", token: f.token(bob, middleware.RoleUser), key: "shared"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Idempotent-Replay"))
	for _, w := range decode[[]models.Wallet](t, resp) {
		assert.Equal(t, bob, w.UserID)
	}
}

func TestExchangeEndpoint(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	tok := f.token(user, middleware.RoleUser)
	usd := f.seed(user, "USD", "100.00")
	eur := f.seed(user, "EUR", "0")

	resp := f.do(call{method: http.MethodPost, path: "/v1/exchanges", token: tok, key: "ex-1", body: move(usd.ID, eur.ID, "50.00")})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[service.ExchangeResult](t, resp)
	assert.Positive(t, res.TransactionID)
	assert.Equal(t, "USD", res.SourceCurrency)
	assert.Equal(t, "EUR", res.TargetCurrency)
	assert.True(t, res.TargetAmount.Equal(decimal.RequireFromString("46.00")), res.TargetAmount.String())
	assert.True(t, res.FXRate.Equal(decimal.RequireFromString("0.92")))

	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets/" + usd.ID.String(), token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Wallet](t, resp).Balance.Equal(decimal.RequireFromString("50.00")))

	resp = f.do(call{method: http.MethodPost, path: "/v1/exchanges", token: tok, key: "ex-1", body: move(usd.ID, eur.ID, "10.00")})
	requireProblem(t, resp, http.StatusConflict, "idempotency/key-conflict")

	resp = f.do(call{method: http.MethodGet, path: "/v1/transactions?type=exchange", token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := decode[[]models.Transaction](t, resp)
	require.Len(t, txs, 1)
	assert.Equal(t, res.TransactionID, txs[0].ID)

	f.outbox.Flush(context.Background(), notify.NewStoreSink(f.store))
	resp = f.do(call{method: http.MethodGet, path: "/v1/notifications", token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[[]models.Notification](t, resp)
	require.Len(t, notes, 1)
	assert.Equal(t, "Exchange completed", notes[0].Title)
}

func TestExchangeErrors(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	tok := f.token(user, middleware.RoleUser)
	usd := f.seed(user, "USD", "10.00")
	eur := f.seed(user, "EUR", "0")
	usd2 := f.seed(user, "USD", "0")
	strangerEUR := f.seed(uuid.New(), "EUR", "0")

	cases := []struct {
		name   string
		body   any
		status int
		slug   string
	}{
		{"insufficient funds", move(usd.ID, eur.ID, "10.01"), http.StatusUnprocessableEntity, "ledger/insufficient-funds"},
		{"same currency", move(usd.ID, usd2.ID, "1.00"), http.StatusUnprocessableEntity, "ledger/same-currency-exchange"},
		{"too precise", move(usd.ID, eur.ID, "1.001"), http.StatusBadRequest, "ledger/invalid-amount"},
		{"negative", move(usd.ID, eur.ID, "-5"), http.StatusBadRequest, "ledger/invalid-amount"},
		{"not a number", move(usd.ID, eur.ID, "ten"), http.StatusBadRequest, "ledger/invalid-amount"},
		{"huge exponent", move(usd.ID, eur.ID, "1e50000000"), http.StatusBadRequest, "ledger/invalid-amount"},
		{"beyond ledger column", move(usd.ID, eur.ID, "1e30"), http.StatusBadRequest, "ledger/invalid-amount"},
		{"tiny exponent", move(usd.ID, eur.ID, "1e-50000000"), http.StatusBadRequest, "ledger/invalid-amount"},
		{"foreign wallet", move(usd.ID, strangerEUR.ID, "1.00"), http.StatusForbidden, "ledger/ownership-mismatch"},
		{"missing wallet", move(usd.ID, uuid.New(), "1.00"), http.StatusNotFound, "ledger/wallet-not-found"},
		{"bad wallet id", map[string]any{"source_wallet_id": "nope", "target_wallet_id": eur.ID.String(), "amount": "1"}, http.StatusBadRequest, "request/invalid-source-wallet-id"},
		{"unknown field", map[string]any{"source_wallet_id": usd.ID.String(), "target_wallet_id": eur.ID.String(), "amount": "1", "rate": "2"}, http.StatusBadRequest, "request/invalid-body"},
	}
	for i, tc := range cases {
		resp := f.do(call{method: http.MethodPost, path: "/v1/exchanges", token: tok, key: fmt.Sprintf("err-%d", i), body: tc.body})
		details := decode[problem.Details](t, resp)
		assert.Equal(t, tc.status, resp.StatusCode, tc.name)
		assert.Equal(t, problem.Type(tc.slug), details.Type, tc.name)
	}

	resp := f.do(call{method: http.MethodGet, path: "/v1/wallets/" + usd.ID.String(), token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Wallet](t, resp).Balance.Equal(decimal.RequireFromString("10.00")))
	assert.Empty(t, f.store.Transactions())
}

func TestTransferEndpoint(t *testing.T) {
	f := newFixture(t)
	alice, bob := uuid.New(), uuid.New()
	aliceTok, bobTok := f.token(alice, middleware.RoleUser), f.token(bob, middleware.RoleUser)
	aliceUSD := f.seed(alice, "USD", "100.00")
	bobUSD := f.seed(bob, "USD", "5.00")
	bobEUR := f.seed(bob, "EUR", "0")

	note := "rent"
	body := move(aliceUSD.ID, bobUSD.ID, "25.50")
	body["note"] = note
	resp := f.do(call{method: http.MethodPost, path: "/v1/transfers", token: aliceTok, key: "tr-1", body: body})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[service.TransferResult](t, resp)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("25.50")))

	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets/" + bobUSD.ID.String(), token: bobTok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Wallet](t, resp).Balance.Equal(decimal.RequireFromString("30.50")))

	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets/" + bobUSD.ID.String(), token: aliceTok})
	requireProblem(t, resp, http.StatusNotFound, "ledger/wallet-not-found")

	resp = f.do(call{method: http.MethodPost, path: "/v1/transfers", token: aliceTok, key: "tr-2", body: move(aliceUSD.ID, bobEUR.ID, "1.00")})
	requireProblem(t, resp, http.StatusUnprocessableEntity, "ledger/currency-mismatch")

	resp = f.do(call{method: http.MethodPost, path: "/v1/transfers", token: aliceTok, key: "tr-3", body: move(aliceUSD.ID, aliceUSD.ID, "1.00")})
	requireProblem(t, resp, http.StatusUnprocessableEntity, "ledger/same-wallet")

	resp = f.do(call{method: http.MethodPost, path: "/v1/transfers", token: bobTok, key: "tr-4", body: move(aliceUSD.ID, bobUSD.ID, "1.00")})
	requireProblem(t, resp, http.StatusForbidden, "ledger/ownership-mismatch")

	long := move(aliceUSD.ID, bobUSD.ID, "1.00")
	long["note"] = strings.Repeat("x", 256)
	resp = f.do(call{method: http.MethodPost, path: "/v1/transfers", token: aliceTok, key: "tr-5", body: long})
	requireProblem(t, resp, http.StatusBadRequest, "request/note-too-long")

	resp = f.do(call{method: http.MethodGet, path: "/v1/wallets/" + bobUSD.ID.String() + "/transactions", token: bobTok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := decode[[]models.Transaction](t, resp)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].Note)
	assert.Equal(t, note, *txs[0].Note)

	f.outbox.Flush(context.Background(), notify.NewStoreSink(f.store))
	resp = f.do(call{method: http.MethodGet, path: "/v1/notifications?limit=10", token: bobTok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[[]models.Notification](t, resp)
	require.Len(t, notes, 1)
	assert.Equal(t, "Transfer received", notes[0].Title)
}

func TestTransferNoteLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)
	alice := uuid.New()
	tok := f.token(alice, middleware.RoleUser)
	source := f.seed(alice, "USD", "10.00")
	target := f.seed(uuid.New(), "USD", "0")

	body := move(source.ID, target.ID, "1.00")
	body["note"] = strings.Repeat("é", 255)
	resp := f.do(call{method: http.MethodPost, path: "/v1/transfers", token: tok, key: "note-ok", body: body})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body = move(source.ID, target.ID, "1.00")
	body["note"] = strings.Repeat("é", 256)
	resp = f.do(call{method: http.MethodPost, path: "/v1/transfers", token: tok, key: "note-long", body: body})
	requireProblem(t, resp, http.StatusBadRequest, "request/note-too-long")
}

func TestTransactionListValidation(t *testing.T) {
	f := newFixture(t)
	tok := f.token(uuid.New(), middleware.RoleUser)

	resp := f.do(call{method: http.MethodGet, path: "/v1/transactions?type=payout", token: tok})
	requireProblem(t, resp, http.StatusBadRequest, "request/invalid-type")

	resp = f.do(call{method: http.MethodGet, path: "/v1/transactions?limit=-1", token: tok})
	requireProblem(t, resp, http.StatusBadRequest, "request/invalid-limit")

	resp = f.do(call{method: http.MethodGet, path: "/v1/transactions", token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Transaction](t, resp))
}

func TestFXRatesEndpoint(t *testing.T) {
	f := newFixture(t)
	tok := f.token(uuid.New(), middleware.RoleUser)

	resp := f.do(call{method: http.MethodGet, path: "/v1/fx/rates?base=usd", token: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Base  string     `json:"base"`
		Rates []fx.Quote `json:"rates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "USD", body.Base)
	require.Len(t, body.Rates, 1)
	assert.Equal(t, "EUR", body.Rates[0].Quote)
	assert.Equal(t, fx.SourceFallback, body.Rates[0].Source)

	resp = f.do(call{method: http.MethodGet, path: "/v1/fx/rates?base=JPY", token: tok})
	requireProblem(t, resp, http.StatusBadRequest, "ledger/unsupported-currency")
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	user, admin := uuid.New(), uuid.New()
	userTok, adminTok := f.token(user, middleware.RoleUser), f.token(admin, middleware.RoleAdmin)

	created, err := f.wallets.ProvisionDefaultWallets(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, created, 2)
	wallet := created[0]

	resp := f.do(call{method: http.MethodGet, path: "/v1/admin/reconciliation", token: userTok})
	requireProblem(t, resp, http.StatusForbidden, "auth/insufficient-permissions")

	credit := map[string]any{"amount": "250.00", "reason": "bank deposit"}
	resp = f.do(call{method: http.MethodPost, path: "/v1/admin/wallets/" + wallet.ID.String() + "/credit", token: adminTok, key: "cr-1", body: credit})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	recorded := decode[models.Credit](t, resp)
	require.NotNil(t, recorded.ActorID)
	assert.Equal(t, admin, *recorded.ActorID)

	resp = f.do(call{method: http.MethodPost, path: "/v1/admin/wallets/" + wallet.ID.String() + "/credit", token: adminTok, key: "cr-2", body: map[string]any{"amount": "1.00"}})
	requireProblem(t, resp, http.StatusBadRequest, "request/missing-reason")

	resp = f.do(call{method: http.MethodGet, path: "/v1/admin/reconciliation", token: adminTok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report struct {
		Balanced bool                 `json:"balanced"`
		Drift    []models.WalletDrift `json:"drift"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.True(t, report.Balanced)
	assert.Empty(t, report.Drift)

	status := map[string]any{"status": "closed"}
	resp = f.do(call{method: http.MethodPatch, path: "/v1/admin/wallets/" + wallet.ID.String() + "/status", token: adminTok, key: "st-1", body: status})
	requireProblem(t, resp, http.StatusConflict, "ledger/invalid-status-transition")

	status["status"] = "frozen"
	resp = f.do(call{method: http.MethodPatch, path: "/v1/admin/wallets/" + wallet.ID.String() + "/status", token: adminTok, key: "st-2", body: status})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "frozen", decode[models.Wallet](t, resp).Status)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.do(call{method: http.MethodGet, path: "/v2/nothing"})
	requireProblem(t, resp, http.StatusNotFound, "request/not-found")
}
