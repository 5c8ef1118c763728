package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/macronotify/capture-api/internal/models"
)

type SourceRepository interface {
	IsEnabled(ctx context.Context, sourceID string) (bool, error)
	Enable(ctx context.Context, sourceID, displayName string) (models.EnabledSource, error)
	Disable(ctx context.Context, sourceID string) error
	ListEnabled(ctx context.Context) ([]models.EnabledSource, error)
}

type sourceRepository struct {
	db     *sql.DB
	driver string
}

func NewSourceRepository(db *sql.DB, driver string) SourceRepository {
	return &sourceRepository{db: db, driver: driver}
}

func (r *sourceRepository) IsEnabled(ctx context.Context, sourceID string) (bool, error) {
	query := rebind(r.driver, `SELECT enabled FROM enabled_sources WHERE source_id = ?`)

	var enabled bool
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(sourceID)).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(err, "check source enabled")
	}
	return enabled, nil
}

// Enable upserts the allowlist row. Re-enabling an already enabled source
// overwrites its display name.
func (r *sourceRepository) Enable(ctx context.Context, sourceID, displayName string) (models.EnabledSource, error) {
	query := rebind(r.driver, `
		INSERT INTO enabled_sources (source_id, display_name, enabled)
		VALUES (?, ?, TRUE)
		ON CONFLICT (source_id) DO UPDATE SET
			display_name = excluded.display_name,
			enabled = excluded.enabled
	`)

	source := models.EnabledSource{
		SourceID:    strings.TrimSpace(sourceID),
		DisplayName: strings.TrimSpace(displayName),
		Enabled:     true,
	}
	if _, err := r.db.ExecContext(ctx, query, source.SourceID, source.DisplayName); err != nil {
		return models.EnabledSource{}, storageErr(err, "enable source")
	}
	return source, nil
}

func (r *sourceRepository) Disable(ctx context.Context, sourceID string) error {
	query := rebind(r.driver, `DELETE FROM enabled_sources WHERE source_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, strings.TrimSpace(sourceID)); err != nil {
		return storageErr(err, "disable source")
	}
	return nil
}

func (r *sourceRepository) ListEnabled(ctx context.Context) ([]models.EnabledSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source_id, display_name, enabled FROM enabled_sources WHERE enabled = TRUE`)
	if err != nil {
		return nil, storageErr(err, "list sources")
	}
	defer rows.Close()

	sources := []models.EnabledSource{}
	for rows.Next() {
		var source models.EnabledSource
		if err := rows.Scan(&source.SourceID, &source.DisplayName, &source.Enabled); err != nil {
			return nil, storageErr(err, "scan source")
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list sources")
	}
	return sources, nil
}
