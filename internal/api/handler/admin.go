package handler

import (
	"net/http"

	"github.com/ayo6706/fx-wallet/internal/domain"
	"github.com/ayo6706/fx-wallet/internal/models"
	"github.com/ayo6706/fx-wallet/internal/service"
	"go.uber.org/zap"
)

// AdminHandler serves operator endpoints. Routes are mounted behind
// RequireRole(admin).
type AdminHandler struct {
	engine     *service.Engine
	reconciler *service.ReconciliationService
}

func NewAdminHandler(engine *service.Engine, reconciler *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{engine: engine, reconciler: reconciler}
}

type creditRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// CreditWallet handles POST /v1/admin/wallets/{id}/credit.
func (h *AdminHandler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	walletID, err := walletIDParam(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet ID")
		return
	}
	var req creditRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.Reason == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}
	amount, err := domain.ParseAmount(req.Amount, "")
	if err != nil {
		respondServiceError(w, r, "credit wallet", err)
		return
	}

	credit, err := h.engine.Credit(r.Context(), service.CreditRequest{
		WalletID: walletID,
		ActorID:  &actorID,
		Amount:   amount,
		Reason:   req.Reason,
	})
	if err != nil {
		respondServiceError(w, r, "credit wallet", err)
		return
	}
	RespondJSON(w, http.StatusCreated, credit)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetWalletStatus handles PATCH /v1/admin/wallets/{id}/status.
func (h *AdminHandler) SetWalletStatus(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	walletID, err := walletIDParam(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet ID")
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	wallet, err := h.engine.SetWalletStatus(r.Context(), walletID, req.Status, &actorID)
	if err != nil {
		respondServiceError(w, r, "set wallet status", err)
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

type reconciliationResponse struct {
	Balanced bool                 `json:"balanced"`
	Drift    []models.WalletDrift `json:"drift"`
}

// Reconciliation handles GET /v1/admin/reconciliation.
func (h *AdminHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	drift, err := h.reconciler.Run(r.Context())
	if err != nil {
		zap.L().Error("on-demand reconciliation failed", zap.Error(err))
		respondServiceError(w, r, "reconciliation", err)
		return
	}
	RespondJSON(w, http.StatusOK, reconciliationResponse{Balanced: len(drift) == 0, Drift: drift})
}
