package handler

import (
	"net/http"

	"github.com/ayo6706/fx-wallet/internal/repository"
)

type NotificationHandler struct {
	store repository.NotificationReader
}

func NewNotificationHandler(store repository.NotificationReader) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// ListNotifications handles GET /v1/notifications?limit=.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
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

	notifications, err := h.store.ListNotificationsForUser(r.Context(), actorID, limit)
	if err != nil {
		respondServiceError(w, r, "list notifications", err)
		return
	}
	RespondJSON(w, http.StatusOK, notifications)
}
