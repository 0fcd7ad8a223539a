package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const defaultSessionTTL = 12 * time.Hour

// AuthAPIHandler выдает cookie-сессию для браузерных клиентов дашборда,
// которые не могут передать Authorization header в WebSocket
type AuthAPIHandler struct {
	auth       middleware.AuthConfig
	sessionTTL time.Duration
	logger     *logger.Logger
}

type sessionRequest struct {
	Token string `json:"token"`
}

// NewAuthAPIHandler создает handler; sessionTTL <= 0 означает 12h
func NewAuthAPIHandler(auth middleware.AuthConfig, sessionTTL time.Duration, log *logger.Logger) *AuthAPIHandler {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &AuthAPIHandler{
		auth:       auth,
		sessionTTL: sessionTTL,
		logger:     log,
	}
}

// Login проверяет токен и ставит HttpOnly cookie
func (h *AuthAPIHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"auth_enabled": false,
		})
		return
	}

	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	token := strings.TrimSpace(req.Token)
	if !h.tokenMatches(token) {
		h.logger.Warn("Session login rejected", "remote_addr", middleware.ClientIP(r))
		if h.auth.OnReject != nil {
			h.auth.OnReject()
		}
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	expiresAt := time.Now().Add(h.sessionTTL).UTC()
	middleware.WriteAuthCookie(w, token, r.TLS != nil, int(h.sessionTTL.Seconds()))
	h.logger.Info("Session opened", "remote_addr", middleware.ClientIP(r), "expires_at", expiresAt)

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"auth_enabled": true,
		"expires_at":   expiresAt,
	})
}

func (h *AuthAPIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearAuthCookie(w, r.TLS != nil)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Status сообщает, пройдет ли текущий запрос авторизацию, и откуда взят токен
func (h *AuthAPIHandler) Status(w http.ResponseWriter, r *http.Request) {
	err := middleware.ValidateRequestAuth(r, h.auth)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"auth_enabled":  h.auth.Enabled,
		"authenticated": err == nil,
		"token_source":  tokenSource(r),
	})
}

func (h *AuthAPIHandler) tokenMatches(token string) bool {
	if token == "" || h.auth.BearerToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.auth.BearerToken)) == 1
}

func tokenSource(r *http.Request) string {
	if strings.TrimSpace(r.Header.Get("Authorization")) != "" {
		return "header"
	}
	if c, err := r.Cookie(middleware.AuthCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return "cookie"
	}
	if strings.TrimSpace(r.URL.Query().Get("token")) != "" {
		return "query"
	}
	return "none"
}
