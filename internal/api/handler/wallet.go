package handler

import (
	"net/http"

	"github.com/ayo6706/fx-wallet/internal/service"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// ListWallets handles GET /v1/wallets.
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	wallets, err := h.svc.ListWallets(r.Context(), actorID)
	if err != nil {
		respondServiceError(w, r, "list wallets", err)
		return
	}
	RespondJSON(w, http.StatusOK, wallets)
}

// ProvisionWallets handles POST /v1/wallets. It creates the default wallets
// the caller is still missing and returns only the new ones.
func (h *WalletHandler) ProvisionWallets(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	created, err := h.svc.ProvisionDefaultWallets(r.Context(), actorID)
	if err != nil {
		respondServiceError(w, r, "provision wallets", err)
		return
	}
	status := http.StatusCreated
	if len(created) == 0 {
		status = http.StatusOK
	}
	RespondJSON(w, status, created)
}

// GetWallet handles GET /v1/wallets/{id}.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
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

	wallet, err := h.svc.GetWallet(r.Context(), actorID, walletID)
	if err != nil {
		respondServiceError(w, r, "get wallet", err)
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// WalletTransactions handles GET /v1/wallets/{id}/transactions.
func (h *WalletHandler) WalletTransactions(w http.ResponseWriter, r *http.Request) {
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
	limit, err := limitParam(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", err.Error())
		return
	}

	txs, err := h.svc.WalletTransactions(r.Context(), actorID, walletID, limit)
	if err != nil {
		respondServiceError(w, r, "list wallet transactions", err)
		return
	}
	RespondJSON(w, http.StatusOK, txs)
}
