package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ayo6706/fx-wallet/internal/api/middleware"
	"github.com/ayo6706/fx-wallet/internal/api/problem"
	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxNoteLength = 255

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	problem.Write(w, r, status, problemType, message)
}

type errorMapping struct {
	status      int
	problemType string
	message     string
}

// ledgerErrors gives every ledger error code its own status and problem type.
var ledgerErrors = map[string]errorMapping{
	"invalid_amount":            {http.StatusBadRequest, "ledger/invalid-amount", "amount must be a positive number within the currency's precision"},
	"unsupported_currency":      {http.StatusBadRequest, "ledger/unsupported-currency", "currency is not supported"},
	"wallet_not_found":          {http.StatusNotFound, "ledger/wallet-not-found", "wallet not found"},
	"ownership_mismatch":        {http.StatusForbidden, "ledger/ownership-mismatch", "wallet does not belong to the caller"},
	"same_currency_exchange":    {http.StatusUnprocessableEntity, "ledger/same-currency-exchange", "cannot exchange between wallets of the same currency"},
	"currency_mismatch":         {http.StatusUnprocessableEntity, "ledger/currency-mismatch", "transfer requires wallets of the same currency"},
	"same_wallet":               {http.StatusUnprocessableEntity, "ledger/same-wallet", "source and target wallet must differ"},
	"insufficient_funds":        {http.StatusUnprocessableEntity, "ledger/insufficient-funds", "insufficient funds"},
	"wallet_inactive":           {http.StatusConflict, "ledger/wallet-inactive", "wallet is not active"},
	"invalid_status_transition": {http.StatusConflict, "ledger/invalid-status-transition", "wallet status change not allowed"},
	"rate_unavailable":          {http.StatusServiceUnavailable, "ledger/rate-unavailable", "exchange rate unavailable, retry later"},
	"store_unavailable":         {http.StatusServiceUnavailable, "ledger/store-unavailable", "storage unavailable, retry later"},
}

// respondServiceError maps a ledger error onto a problem response. Anything
// that is not a ledger error is logged and reported as a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if m, ok := ledgerErrors[domain.Code(err)]; ok {
		if m.status >= http.StatusInternalServerError {
			zap.L().Warn(op+" unavailable", zap.Error(err))
		}
		RespondError(w, r, m.status, m.problemType, m.message)
		return
	}
	if status, pType, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, pType, msg)
		return
	}
	zap.L().Error(op+" failed", zap.Error(err))
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == middleware.RoleAdmin, nil
}

func walletIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// limitParam reads ?limit=. Absent means 0, which the store turns into its
// default page size.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
