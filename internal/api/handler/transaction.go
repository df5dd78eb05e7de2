package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionHandler struct {
	engine *service.Engine
}

func NewTransactionHandler(engine *service.Engine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

// MoveRequest is the body of POST /v1/exchanges and POST /v1/transfers.
// Amounts are decimal strings so no precision is lost in transit.
type MoveRequest struct {
	SourceWalletID string  `json:"source_wallet_id"`
	TargetWalletID string  `json:"target_wallet_id"`
	Amount         string  `json:"amount"`
	Note           *string `json:"note,omitempty"`
}

type parsedMove struct {
	source uuid.UUID
	target uuid.UUID
	amount decimal.Decimal
	note   *string
}

func (h *TransactionHandler) parseMove(w http.ResponseWriter, r *http.Request) (parsedMove, bool) {
	var req MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return parsedMove{}, false
	}
	source, err := uuid.Parse(req.SourceWalletID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-source-wallet-id", "Invalid source_wallet_id")
		return parsedMove{}, false
	}
	target, err := uuid.Parse(req.TargetWalletID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-target-wallet-id", "Invalid target_wallet_id")
		return parsedMove{}, false
	}
	// Precision is checked against the wallet currency by the engine.
	amount, err := domain.ParseAmount(req.Amount, "")
	if err != nil {
		respondServiceError(w, r, "parse amount", err)
		return parsedMove{}, false
	}
	if req.Note != nil {
		note := strings.TrimSpace(*req.Note)
		if utf8.RuneCountInString(note) > maxNoteLength {
			RespondError(w, r, http.StatusBadRequest, "request/note-too-long", "note must be at most 255 characters")
			return parsedMove{}, false
		}
		if note == "" {
			req.Note = nil
		} else {
			req.Note = &note
		}
	}
	return parsedMove{source: source, target: target, amount: amount, note: req.Note}, true
}

// Exchange handles POST /v1/exchanges.
func (h *TransactionHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	move, ok := h.parseMove(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Exchange(r.Context(), service.ExchangeRequest{
		UserID:         actorID,
		SourceWalletID: move.source,
		TargetWalletID: move.target,
		Amount:         move.amount,
		Note:           move.note,
	})
	if err != nil {
		respondServiceError(w, r, "exchange", err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// Transfer handles POST /v1/transfers.
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	move, ok := h.parseMove(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Transfer(r.Context(), service.TransferRequest{
		UserID:         actorID,
		SourceWalletID: move.source,
		TargetWalletID: move.target,
		Amount:         move.amount,
		Note:           move.note,
	})
	if err != nil {
		respondServiceError(w, r, "transfer", err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// ListTransactions handles GET /v1/transactions?type=&limit=.
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", err.Error())
		return
	}
	txType := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type")))
	if txType != "" && txType != domain.TxTypeExchange && txType != domain.TxTypeTransfer {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-type", "type must be exchange or transfer")
		return
	}

	txs, err := h.engine.ListTransactions(r.Context(), actorID, models.TransactionFilter{Type: txType, Limit: limit})
	if err != nil {
		respondServiceError(w, r, "list transactions", err)
		return
	}
	RespondJSON(w, http.StatusOK, txs)
}
