package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/macronotify/capture-api/internal/config"
	"github.com/macronotify/capture-api/internal/flatten"
	"github.com/macronotify/capture-api/internal/handlers"
	"github.com/macronotify/capture-api/internal/migration"
	"github.com/macronotify/capture-api/internal/models"
	"github.com/macronotify/capture-api/internal/pipeline"
	"github.com/macronotify/capture-api/internal/relay"
	"github.com/macronotify/capture-api/internal/repository"
	"github.com/macronotify/capture-api/internal/routes"
)

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := repository.Open(repository.DriverSQLite, filepath.Join(t.TempDir(), "capture.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := migration.Run(db, repository.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	notificationRepo := repository.NewNotificationRepository(db, repository.DriverSQLite)
	sourceRepo := repository.NewSourceRepository(db, repository.DriverSQLite)
	hub := relay.NewHub(logger)
	capture := pipeline.New(sourceRepo, notificationRepo, flatten.New(logger), hub, true, logger)

	return routes.NewRouter(
		handlers.NewAuthHandler(cfg, logger),
		handlers.NewIngestHandler(capture, logger),
		handlers.NewNotificationHandler(notificationRepo, logger),
		handlers.NewSourceHandler(sourceRepo, logger),
		handlers.NewStreamHandler(hub, logger),
	)
}

func baseConfig() *config.Config {
	return &config.Config{Capture: config.CaptureConfig{StoreRawPayload: true}}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postEvent(t *testing.T, router http.Handler, event models.RawEvent) pipeline.Result {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/events", event)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body.String())
	}
	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode ingest result: %v", err)
	}
	return result
}

func paymentEvent() models.RawEvent {
	return models.RawEvent{
		SourceID:             "com.bank.app",
		SourceNotificationID: 7,
		NativeKey:            "0|com.bank.app|7",
		PostedAtMillis:       1700000000000,
		Action:               models.ActionPosted,
		Payload: map[string]any{
			"android.title": "Payment received",
			"android.text":  "$10.00",
		},
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, baseConfig())
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestEnableSourceValidation(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "missing source_id", body: map[string]string{"display_name": "Bank"}},
		{name: "missing display_name", body: map[string]string{"source_id": "com.bank.app"}},
		{name: "blank fields", body: map[string]string{"source_id": " ", "display_name": " "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/sources", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400", rec.Code)
			}
		})
	}
}

func TestSourceLifecycle(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	rec := doJSON(t, router, http.MethodPost, "/api/sources",
		map[string]string{"source_id": "com.bank.app", "display_name": "Bank"})
	if rec.Code != http.StatusOK {
		t.Fatalf("enable returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	var listResp struct {
		Sources []models.EnabledSource `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listResp.Sources) != 1 || listResp.Sources[0].SourceID != "com.bank.app" {
		t.Fatalf("unexpected sources: %+v", listResp.Sources)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/sources/com.bank.app", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable returned %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/sources", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listResp.Sources) != 0 {
		t.Fatalf("source still listed after disable: %+v", listResp.Sources)
	}
}

func TestIngestAndListFlow(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	doJSON(t, router, http.MethodPost, "/api/sources",
		map[string]string{"source_id": "com.bank.app", "display_name": "Bank"})

	result := postEvent(t, router, paymentEvent())
	if !result.Accepted || !result.Persisted {
		t.Fatalf("unexpected ingest result: %+v", result)
	}

	removed := paymentEvent()
	removed.Action = models.ActionRemoved
	postEvent(t, router, removed)

	rec := doJSON(t, router, http.MethodGet, "/api/notifications?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	var listResp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listResp.Notifications) != 2 {
		t.Fatalf("expected 2 records, got %d", len(listResp.Notifications))
	}
	newest := listResp.Notifications[0]
	if newest.Action != models.ActionRemoved {
		t.Fatalf("newest record should be the removed event, got %+v", newest)
	}
	if listResp.Notifications[1].Title != "Payment received" {
		t.Fatalf("posted record lost its title: %+v", listResp.Notifications[1])
	}
}

func TestIngestFromUnknownSourceIsDropped(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	result := postEvent(t, router, paymentEvent())
	if result.Accepted {
		t.Fatal("event from a source not in the allowlist must be dropped")
	}

	rec := doJSON(t, router, http.MethodGet, "/api/notifications?limit=10", nil)
	if !strings.Contains(rec.Body.String(), `"notifications":[]`) {
		t.Fatalf("store should be empty, got %s", rec.Body.String())
	}
}

func TestIngestValidation(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	event := paymentEvent()
	event.SourceID = ""
	rec := doJSON(t, router, http.MethodPost, "/api/events", event)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing source_id: got %d, want 400", rec.Code)
	}

	event = paymentEvent()
	event.Action = "snoozed"
	rec = doJSON(t, router, http.MethodPost, "/api/events", event)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: got %d, want 400", rec.Code)
	}
}

func TestDeleteAndClearNotifications(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	doJSON(t, router, http.MethodPost, "/api/sources",
		map[string]string{"source_id": "com.bank.app", "display_name": "Bank"})
	result := postEvent(t, router, paymentEvent())
	postEvent(t, router, paymentEvent())

	recordPath := "/api/notifications/" + strconv.FormatInt(result.Record.ID, 10)
	rec := doJSON(t, router, http.MethodDelete, recordPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}
	// Deleting the same id again still succeeds.
	rec = doJSON(t, router, http.MethodDelete, recordPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second delete returned %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/notifications", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear returned %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/notifications?limit=10", nil)
	if !strings.Contains(rec.Body.String(), `"notifications":[]`) {
		t.Fatalf("store should be empty after clear, got %s", rec.Body.String())
	}
}

func TestListLimitValidation(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	rec := doJSON(t, router, http.MethodGet, "/api/notifications?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric limit: got %d, want 400", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/notifications?limit=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit: got %d, want 400", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/notifications?limit=0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("limit 0 must succeed, got %d", rec.Code)
	}
}

func TestAuthGuardsAPIWhenConfigured(t *testing.T) {
	cfg := baseConfig()
	// Any non-empty hash switches the middleware on; no login happens here.
	cfg.GatewayPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMye1J9cS6uT6Xp9cZy0D9g5xKX1G0nZbZu"
	cfg.JWTSecret = "test-secret"
	router := newTestRouter(t, cfg)

	rec := doJSON(t, router, http.MethodGet, "/api/notifications", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request: got %d, want 401", rec.Code)
	}

	// Health stays public.
	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", rec.Code)
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cfg := baseConfig()
	cfg.GatewayPasswordHash = string(hash)
	cfg.JWTSecret = "test-secret"
	router := newTestRouter(t, cfg)

	rec := doJSON(t, router, http.MethodPost, "/api/login", map[string]string{"password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/login", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var loginResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp["token"])
	authed := httptest.NewRecorder()
	router.ServeHTTP(authed, req)
	if authed.Code != http.StatusOK {
		t.Fatalf("token rejected: %d %s", authed.Code, authed.Body.String())
	}
}

func TestLiveStreamReceivesIngestedEvents(t *testing.T) {
	router := newTestRouter(t, baseConfig())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	doJSON(t, router, http.MethodPost, "/api/sources",
		map[string]string{"source_id": "com.bank.app", "display_name": "Bank"})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/events/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	postEvent(t, router, paymentEvent())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	var notif models.Notification
	if err := json.Unmarshal(message, &notif); err != nil {
		t.Fatalf("decode streamed record: %v", err)
	}
	if notif.Title != "Payment received" || notif.SourceID != "com.bank.app" {
		t.Fatalf("streamed wrong record: %+v", notif)
	}
}
