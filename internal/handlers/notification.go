package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/types"
)

// NotificationHandler exposes the caller's notification feed.
type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// NotificationRouter registers notification routes on the given router.
func NotificationRouter(r chi.Router, notifications *services.NotificationService, jwtSecret string) {
	handler := NewNotificationHandler(notifications)

	r.Use(RequireAuth(jwtSecret))
	r.Get("/", handler.List)
	r.Get("/unread-count", handler.UnreadCount)
	r.Put("/{id}/read", handler.MarkRead)
	r.Put("/read-all", handler.MarkAllRead)
	r.Delete("/{id}", handler.Delete)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	notifications, err := h.notifications.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []types.Notification{}
	}

	writeJSON(w, http.StatusOK, notifications)
}

// UnreadCount reports the live unread total, recomputed per request so it
// never drifts from the rows.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead marks one notification read. Repeating the call is a no-op.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), id, userID); err != nil {
		writeServiceError(w, err, "failed to mark notification read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.notifications.MarkAllRead(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.notifications.Delete(r.Context(), id, userID); err != nil {
		writeServiceError(w, err, "failed to delete notification")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
