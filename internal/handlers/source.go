package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/repository"
)

type SourceHandler struct {
	repo   repository.SourceRepository
	logger zerolog.Logger
}

type enableSourceRequest struct {
	SourceID    string `json:"source_id"`
	DisplayName string `json:"display_name"`
}

func NewSourceHandler(repo repository.SourceRepository, logger zerolog.Logger) *SourceHandler {
	return &SourceHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "source").Logger(),
	}
}

func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.repo.ListEnabled(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list enabled sources")
		http.Error(w, "Failed to list sources", storageStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
	})
}

func (h *SourceHandler) Enable(w http.ResponseWriter, r *http.Request) {
	var req enableSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	req.SourceID = strings.TrimSpace(req.SourceID)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.SourceID == "" || req.DisplayName == "" {
		http.Error(w, "source_id and display_name are required", http.StatusBadRequest)
		return
	}

	source, err := h.repo.Enable(r.Context(), req.SourceID, req.DisplayName)
	if err != nil {
		h.logger.Error().Err(err).Str("source_id", req.SourceID).Msg("failed to enable source")
		http.Error(w, "Failed to enable source", storageStatus(err))
		return
	}

	h.logger.Info().Str("source_id", source.SourceID).Str("display_name", source.DisplayName).
		Msg("source enabled")
	writeJSON(w, http.StatusOK, source)
}

func (h *SourceHandler) Disable(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(mux.Vars(r)["sourceID"])
	if sourceID == "" {
		http.Error(w, "source_id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Disable(r.Context(), sourceID); err != nil {
		h.logger.Error().Err(err).Str("source_id", sourceID).Msg("failed to disable source")
		http.Error(w, "Failed to disable source", storageStatus(err))
		return
	}

	h.logger.Info().Str("source_id", sourceID).Msg("source disabled")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
