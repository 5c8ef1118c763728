package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/macronotify/capture-api/internal/config"
)

// AuthHandler implements the gateway's single-password login. The
// capture service runs on-device for one user, so there is no user table:
// the config carries a bcrypt hash of the gateway password, and a valid
// login yields a short-lived bearer token. With no hash configured the
// API runs open and the middleware passes everything through.
type AuthHandler struct {
	passwordHash string
	jwtSecret    string
	logger       zerolog.Logger
}

type loginRequest struct {
	Password string `json:"password"`
}

func NewAuthHandler(cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		passwordHash: cfg.GatewayPasswordHash,
		jwtSecret:    cfg.JWTSecret,
		logger:       logger.With().Str("handler", "auth").Logger(),
	}
}

// Enabled reports whether authentication is configured.
func (h *AuthHandler) Enabled() bool {
	return h.passwordHash != ""
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.Enabled() {
		http.Error(w, "Authentication is not configured", http.StatusNotFound)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("failed login attempt")
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "gateway",
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			// Browsers cannot set headers on websocket dials; the stream
			// endpoint accepts the token as a query parameter instead.
			if token := r.URL.Query().Get("token"); token != "" {
				auth = "Bearer " + token
			}
		}
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
