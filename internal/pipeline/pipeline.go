// Package pipeline wires the capture path: allowlist filter, payload
// flattening, durable store, live relay. Command operations (list,
// delete, enable, disable) go straight to the repositories and never
// touch this path.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/flatten"
	"github.com/macronotify/capture-api/internal/models"
	"github.com/macronotify/capture-api/internal/relay"
	"github.com/macronotify/capture-api/internal/repository"
)

// ErrInvalidEvent marks an inbound event that is malformed beyond
// processing (missing source id or unknown action). It is the only
// ingestion error surfaced to the feed.
var ErrInvalidEvent = errors.New("invalid raw event")

// Well-known payload keys carrying the notification texts, as flattened
// from the platform's extras bundle.
const (
	keyTitle        = "android.title"
	keyText         = "android.text"
	keySubText      = "android.subText"
	keyExpandedText = "android.bigText"
)

// Result reports what happened to one inbound event.
type Result struct {
	// Accepted is false when the capture filter dropped the event.
	Accepted bool `json:"accepted"`
	// Persisted is false when the Event Store was unavailable; the record
	// may still have been relayed live.
	Persisted bool `json:"persisted"`
	// Record is the normalized record, zero when the event was dropped.
	// Its ID is zero when persistence failed.
	Record models.Notification `json:"record,omitempty"`
}

type Pipeline struct {
	sources   repository.SourceRepository
	events    repository.NotificationRepository
	flattener *flatten.Flattener
	hub       *relay.Hub
	storeRaw  bool
	logger    zerolog.Logger
}

func New(
	sources repository.SourceRepository,
	events repository.NotificationRepository,
	flattener *flatten.Flattener,
	hub *relay.Hub,
	storeRaw bool,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		sources:   sources,
		events:    events,
		flattener: flattener,
		hub:       hub,
		storeRaw:  storeRaw,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// HandleEvent runs one inbound event through the capture path.
//
// The filter check happens first, before any flattening work. Persistence
// and relay are independent: a store failure degrades to a live-only
// event, and an idle relay never suppresses the store write. The only
// returned error is ErrInvalidEvent; every other failure mode is a
// logged, degraded continuation.
func (p *Pipeline) HandleEvent(ctx context.Context, raw models.RawEvent) (Result, error) {
	if strings.TrimSpace(raw.SourceID) == "" {
		return Result{}, errors.Wrap(ErrInvalidEvent, "source_id is required")
	}
	if !raw.Action.Valid() {
		return Result{}, errors.Wrapf(ErrInvalidEvent, "unknown action %q", raw.Action)
	}

	enabled, err := p.sources.IsEnabled(ctx, raw.SourceID)
	if err != nil {
		// Without the allowlist we cannot tell opted-in from ignored;
		// dropping matches the filter's contract for unknown sources.
		p.logger.Error().Err(err).Str("source_id", raw.SourceID).
			Msg("allowlist check failed, dropping event")
		return Result{}, nil
	}
	if !enabled {
		p.logger.Debug().Str("source_id", raw.SourceID).Msg("source not enabled, dropping event")
		return Result{}, nil
	}

	flat := p.flattener.Flatten(raw.Payload)
	extras, err := json.Marshal(flat)
	if err != nil {
		// Flatten output is JSON-safe by construction; treat a marshal
		// failure like a dropped field set rather than a dropped event.
		p.logger.Warn().Err(err).Str("source_id", raw.SourceID).Msg("failed to encode extras")
		extras = nil
	}

	var rawPayload []byte
	if p.storeRaw && len(raw.Payload) > 0 {
		if rawPayload, err = json.Marshal(raw.Payload); err != nil {
			p.logger.Warn().Err(err).Str("source_id", raw.SourceID).Msg("failed to encode raw payload")
			rawPayload = nil
		}
	}

	params := repository.InsertNotificationParams{
		SourceID:             raw.SourceID,
		Title:                stringField(flat, keyTitle, "title"),
		Body:                 stringField(flat, keyText, "body", "text"),
		SubText:              stringField(flat, keySubText, "sub_text"),
		ExpandedText:         stringField(flat, keyExpandedText, "expanded_text"),
		NativeKey:            raw.NativeKey,
		PostedAtMillis:       raw.PostedAtMillis,
		Action:               raw.Action,
		SourceNotificationID: raw.SourceNotificationID,
		Extras:               extras,
		RawPayload:           rawPayload,
	}

	result := Result{Accepted: true, Persisted: true}
	record, err := p.events.Insert(ctx, params)
	if err != nil {
		// Non-fatal: the event is lost for persistence but still relayed.
		p.logger.Error().Err(err).Str("source_id", raw.SourceID).
			Msg("store insert failed, relaying unpersisted record")
		result.Persisted = false
		record = unpersistedRecord(params)
	}
	result.Record = record

	p.hub.Publish(record)
	return result, nil
}

// unpersistedRecord builds the relay-only view of an event whose store
// write failed. ID stays zero: only the store assigns ids.
func unpersistedRecord(params repository.InsertNotificationParams) models.Notification {
	return models.Notification{
		SourceID:             params.SourceID,
		Title:                params.Title,
		Body:                 params.Body,
		SubText:              params.SubText,
		ExpandedText:         params.ExpandedText,
		NativeKey:            params.NativeKey,
		PostedAtMillis:       params.PostedAtMillis,
		Action:               params.Action,
		SourceNotificationID: params.SourceNotificationID,
		Extras:               params.Extras,
		RawPayload:           params.RawPayload,
		IsActive:             true,
	}
}

// stringField returns the first of the named keys holding a string.
func stringField(flat map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := flat[key].(string); ok {
			return v
		}
	}
	return ""
}
