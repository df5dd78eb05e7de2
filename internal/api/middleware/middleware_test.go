package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/fx-wallet/internal/idempotency"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testJWT = NewJWTConfig("middleware-secret-0123456789-abcdef", "fx-wallet", "fx-wallet-api")

func whoAmI(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(UserIDFromContext(r.Context()) + "|" + UserRoleFromContext(r.Context())))
}

func TestAuth_AcceptsIssuedToken(t *testing.T) {
	userID := uuid.New()
	tok, err := testJWT.IssueToken(userID, "", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	Auth(testJWT)(http.HandlerFunc(whoAmI)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String()+"|"+RoleUser, rec.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	userID := uuid.New()
	expired, err := testJWT.IssueToken(userID, RoleUser, -time.Minute)
	require.NoError(t, err)

	wrongAudience, err := NewJWTConfig(string(testJWT.Secret), "fx-wallet", "someone-else").IssueToken(userID, RoleUser, time.Minute)
	require.NoError(t, err)

	mismatched, err := jwt.NewWithClaims(jwt.SigningMethodHS256, authClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    testJWT.Issuer,
			Audience:  jwt.ClaimStrings{testJWT.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(testJWT.Secret)
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		status int
	}{
		"missing header":  {"", http.StatusUnauthorized},
		"not bearer":      {"Basic abc", http.StatusUnauthorized},
		"expired":         {"Bearer " + expired, http.StatusUnauthorized},
		"wrong audience":  {"Bearer " + wrongAudience, http.StatusUnauthorized},
		"subject differs": {"Bearer " + mismatched, http.StatusUnauthorized},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		Auth(testJWT)(http.HandlerFunc(whoAmI)).ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, name)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"), name)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(RoleAdmin)(http.HandlerFunc(whoAmI))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), uuid.NewString(), RoleUser))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithUser(req.Context(), uuid.NewString(), RoleAdmin))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotency_ReleasesKeyAfterServerError(t *testing.T) {
	store := idempotency.NewStore(nil, repository.NewMemoryStore(), time.Hour)
	calls := 0
	h := Idempotency(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	userID := uuid.NewString()
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/transfers", strings.NewReader(`{"amount":"1"}`))
		req.Header.Set(IdempotencyHeader, "retry-me")
		req = req.WithContext(WithUser(req.Context(), userID, RoleUser))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusServiceUnavailable, send().Code)
	assert.Equal(t, http.StatusCreated, send().Code)

	replay := send()
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "store", replay.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 2, calls)
}

func TestIdempotency_RejectsLongKey(t *testing.T) {
	store := idempotency.NewStore(nil, repository.NewMemoryStore(), time.Hour)
	h := Idempotency(store, zap.NewNop())(http.HandlerFunc(whoAmI))

	req := httptest.NewRequest(http.MethodPost, "/v1/exchanges", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyHeader, strings.Repeat("k", maxIdempotencyKeyLen+1))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrace_PropagatesOrMints(t *testing.T) {
	var seen string
	h := Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Trace-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRecover_ConvertsPanic(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
