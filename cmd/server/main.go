package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/config"
	"github.com/macronotify/capture-api/internal/flatten"
	"github.com/macronotify/capture-api/internal/handlers"
	"github.com/macronotify/capture-api/internal/middleware"
	"github.com/macronotify/capture-api/internal/migration"
	"github.com/macronotify/capture-api/internal/pipeline"
	"github.com/macronotify/capture-api/internal/relay"
	"github.com/macronotify/capture-api/internal/repository"
	"github.com/macronotify/capture-api/internal/routes"
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
	hub    *relay.Hub
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	dsn := cfg.Database.Path
	if cfg.Database.Driver == repository.DriverPostgres {
		dsn = cfg.Database.URL
	}
	db, err := repository.Open(cfg.Database.Driver, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.Run(db, cfg.Database.Driver); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app := &application{
		config: cfg,
		db:     db,
		logger: logger,
		hub:    relay.NewHub(logger),
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORSOrigins),
		h.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	notificationRepo := repository.NewNotificationRepository(app.db, app.config.Database.Driver)
	sourceRepo := repository.NewSourceRepository(app.db, app.config.Database.Driver)

	// Capture pipeline
	capture := pipeline.New(
		sourceRepo,
		notificationRepo,
		flatten.New(logger),
		app.hub,
		app.config.Capture.StoreRawPayload,
		logger,
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(app.config, logger)
	ingestHandler := handlers.NewIngestHandler(capture, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, logger)
	sourceHandler := handlers.NewSourceHandler(sourceRepo, logger)
	streamHandler := handlers.NewStreamHandler(app.hub, logger)

	return routes.NewRouter(authHandler, ingestHandler, notificationHandler, sourceHandler, streamHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
