package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/models"
	"github.com/macronotify/capture-api/internal/pipeline"
)

// IngestHandler receives raw events from the platform listener and feeds
// them into the capture pipeline.
type IngestHandler struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

func NewIngestHandler(p *pipeline.Pipeline, logger zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		pipeline: p,
		logger:   logger.With().Str("handler", "ingest").Logger(),
	}
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var raw models.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	eventID := uuid.New()
	result, err := h.pipeline.HandleEvent(r.Context(), raw)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("event_id", eventID.String()).Msg("failed to process event")
		http.Error(w, "Failed to process event", http.StatusInternalServerError)
		return
	}

	if !result.Persisted {
		h.logger.Warn().
			Str("event_id", eventID.String()).
			Str("source_id", raw.SourceID).
			Msg("event accepted but not persisted")
	}

	// 202 either way: dropped, degraded, and fully processed events are
	// all terminal states for the feed, which never retries.
	writeJSON(w, http.StatusAccepted, result)
}
