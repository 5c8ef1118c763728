package models

import "encoding/json"

// NotificationAction records whether the originating system posted or
// removed the notification. A posted/removed pair for the same logical
// notification produces two independent records.
type NotificationAction string

const (
	ActionPosted  NotificationAction = "posted"
	ActionRemoved NotificationAction = "removed"
)

// Valid reports whether the action is one of the known values.
func (a NotificationAction) Valid() bool {
	return a == ActionPosted || a == ActionRemoved
}

// Notification is one captured, normalized notification event. Rows are
// immutable after insert except for deletion.
type Notification struct {
	ID                   int64              `json:"id" db:"id"`
	SourceID             string             `json:"source_id" db:"source_id"`
	Title                string             `json:"title" db:"title"`
	Body                 string             `json:"body" db:"body"`
	SubText              string             `json:"sub_text" db:"sub_text"`
	ExpandedText         string             `json:"expanded_text" db:"expanded_text"`
	NativeKey            string             `json:"native_key,omitempty" db:"native_key"`
	PostedAtMillis       int64              `json:"posted_at_ms" db:"posted_at_ms"`
	CapturedAtMillis     int64              `json:"captured_at_ms" db:"captured_at_ms"`
	Action               NotificationAction `json:"action" db:"action"`
	SourceNotificationID int64              `json:"source_notification_id" db:"source_notification_id"`
	Extras               json.RawMessage    `json:"extras,omitempty" db:"extras"`
	RawPayload           json.RawMessage    `json:"raw_payload,omitempty" db:"raw_payload"`
	IsActive             bool               `json:"is_active" db:"is_active"`
}

// EnabledSource is one allowlist entry: a source application the user has
// opted into monitoring. SourceID is the primary key; enabling an already
// enabled source overwrites the display name.
type EnabledSource struct {
	SourceID    string `json:"source_id" db:"source_id"`
	DisplayName string `json:"display_name" db:"display_name"`
	Enabled     bool   `json:"enabled" db:"enabled"`
}

// RawEvent is an inbound notification event as delivered by the platform
// listener, before filtering and normalization.
type RawEvent struct {
	SourceID             string             `json:"source_id"`
	SourceNotificationID int64              `json:"source_notification_id"`
	NativeKey            string             `json:"native_key"`
	PostedAtMillis       int64              `json:"posted_at_ms"`
	Action               NotificationAction `json:"action"`
	Payload              map[string]any     `json:"payload"`
}
