package migration

import (
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/repository"
)

// Embed SQL files for both dialects; the directory is picked at run time.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embeddedMigrations embed.FS

// Run applies any pending schema migrations for the configured driver.
func Run(db *sql.DB, driver string) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if driver == repository.DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}

	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// gooseAdapter routes goose's log output through zerolog.
type gooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) goose.Logger {
	return &gooseAdapter{logger: logger.With().Str("component", "migration").Logger()}
}

func (g *gooseAdapter) Fatalf(format string, v ...interface{}) {
	g.logger.Fatal().Msgf(format, v...)
}

func (g *gooseAdapter) Printf(format string, v ...interface{}) {
	g.logger.Info().Msgf(format, v...)
}
