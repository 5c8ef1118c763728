package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/repository"
)

const defaultListLimit = 100

type NotificationHandler struct {
	repo   repository.NotificationRepository
	logger zerolog.Logger
}

func NewNotificationHandler(repo repository.NotificationRepository, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	notifications, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		http.Error(w, "Failed to list notifications", storageStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["notificationID"], 10, 64)
	if err != nil {
		http.Error(w, "Notification ID must be an integer", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteByID(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Int64("notification_id", id).Msg("failed to delete notification")
		http.Error(w, "Failed to delete notification", storageStatus(err))
		return
	}

	// Deleting an absent id is a no-op, so this always reports success.
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Clear(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to clear notifications")
		http.Error(w, "Failed to clear notifications", storageStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
