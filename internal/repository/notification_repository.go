package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/macronotify/capture-api/internal/models"
)

type NotificationRepository interface {
	Insert(ctx context.Context, params InsertNotificationParams) (models.Notification, error)
	ListRecent(ctx context.Context, limit int) ([]models.Notification, error)
	DeleteByID(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

type notificationRepository struct {
	db     *sql.DB
	driver string
}

// InsertNotificationParams carries every field the caller supplies; the
// store assigns the id and the captured-at timestamp.
type InsertNotificationParams struct {
	SourceID             string
	Title                string
	Body                 string
	SubText              string
	ExpandedText         string
	NativeKey            string
	PostedAtMillis       int64
	Action               models.NotificationAction
	SourceNotificationID int64
	Extras               []byte
	RawPayload           []byte
}

func NewNotificationRepository(db *sql.DB, driver string) NotificationRepository {
	return &notificationRepository{db: db, driver: driver}
}

func (r *notificationRepository) Insert(ctx context.Context, params InsertNotificationParams) (models.Notification, error) {
	query := rebind(r.driver, `
		INSERT INTO notifications
			(source_id, title, body, sub_text, expanded_text, native_key,
			 posted_at_ms, captured_at_ms, action, source_notification_id,
			 extras, raw_payload, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)
		RETURNING id
	`)

	notif := models.Notification{
		SourceID:             params.SourceID,
		Title:                params.Title,
		Body:                 params.Body,
		SubText:              params.SubText,
		ExpandedText:         params.ExpandedText,
		NativeKey:            params.NativeKey,
		PostedAtMillis:       params.PostedAtMillis,
		CapturedAtMillis:     time.Now().UnixMilli(),
		Action:               params.Action,
		SourceNotificationID: params.SourceNotificationID,
		Extras:               params.Extras,
		RawPayload:           params.RawPayload,
		IsActive:             true,
	}

	var extras, raw any
	if len(params.Extras) > 0 {
		extras = params.Extras
	}
	if len(params.RawPayload) > 0 {
		raw = params.RawPayload
	}

	err := r.db.QueryRowContext(ctx, query,
		notif.SourceID, notif.Title, notif.Body, notif.SubText, notif.ExpandedText,
		nullStr(notif.NativeKey), notif.PostedAtMillis, notif.CapturedAtMillis,
		string(notif.Action), notif.SourceNotificationID, extras, raw,
	).Scan(&notif.ID)
	if err != nil {
		return models.Notification{}, storageErr(err, "insert notification")
	}
	return notif, nil
}

func (r *notificationRepository) ListRecent(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		return []models.Notification{}, nil
	}

	query := rebind(r.driver, `
		SELECT id, source_id, title, body, sub_text, expanded_text, native_key,
		       posted_at_ms, captured_at_ms, action, source_notification_id,
		       extras, raw_payload, is_active
		FROM notifications
		ORDER BY captured_at_ms DESC, id DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storageErr(err, "list notifications")
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, storageErr(err, "scan notification")
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list notifications")
	}
	return notifications, nil
}

func (r *notificationRepository) DeleteByID(ctx context.Context, id int64) error {
	query := rebind(r.driver, `DELETE FROM notifications WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return storageErr(err, "delete notification")
	}
	return nil
}

func (r *notificationRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return storageErr(err, "clear notifications")
	}
	return nil
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif     models.Notification
		nativeKey sql.NullString
		action    string
		extras    []byte
		raw       []byte
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.SourceID,
		&notif.Title,
		&notif.Body,
		&notif.SubText,
		&notif.ExpandedText,
		&nativeKey,
		&notif.PostedAtMillis,
		&notif.CapturedAtMillis,
		&action,
		&notif.SourceNotificationID,
		&extras,
		&raw,
		&notif.IsActive,
	); err != nil {
		return models.Notification{}, err
	}

	if nativeKey.Valid {
		notif.NativeKey = nativeKey.String
	}
	notif.Action = models.NotificationAction(action)
	if len(extras) > 0 {
		notif.Extras = extras
	}
	if len(raw) > 0 {
		notif.RawPayload = raw
	}
	return notif, nil
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
