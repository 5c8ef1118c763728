package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/macronotify/capture-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(
	auth *handlers.AuthHandler,
	ingest *handlers.IngestHandler,
	notifications *handlers.NotificationHandler,
	sources *handlers.SourceHandler,
	stream *handlers.StreamHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoint
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	// Inbound feed from the platform listener
	api.HandleFunc("/events", ingest.Ingest).Methods(http.MethodPost)
	// Live relay to the single downstream consumer
	api.HandleFunc("/events/stream", stream.Subscribe).Methods(http.MethodGet)

	// Stored notifications
	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications", notifications.Clear).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/{notificationID}", notifications.Delete).Methods(http.MethodDelete)

	// Allowlist
	api.HandleFunc("/sources", sources.List).Methods(http.MethodGet)
	api.HandleFunc("/sources", sources.Enable).Methods(http.MethodPost)
	api.HandleFunc("/sources/{sourceID}", sources.Disable).Methods(http.MethodDelete)

	return router
}
