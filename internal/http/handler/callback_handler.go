package handler

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shhvang/rSpotify/internal/cert"
	"github.com/shhvang/rSpotify/internal/config"
	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/repository"
)

// CertReporter is the slice of the certificate manager the health probe uses.
type CertReporter interface {
	Status() cert.Status
}

// CallbackHandler serves the public OAuth callback surface.
type CallbackHandler struct {
	store  repository.HandoffStore
	certs  CertReporter
	cfg    config.Config
	logger *zap.Logger
}

// NewCallbackHandler creates the handler set for the callback listener.
func NewCallbackHandler(store repository.HandoffStore, certs CertReporter, cfg config.Config, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{store: store, certs: certs, cfg: cfg, logger: logger}
}

// Index is the root banner endpoint.
func (h *CallbackHandler) Index(c *gin.Context) {
	c.String(http.StatusOK, "rSpotify OAuth callback service")
}

// Health reports store connectivity and the certificate validity window.
func (h *CallbackHandler) Health(c *gin.Context) {
	status := http.StatusOK
	overall := "healthy"
	storeStatus := "ok"
	if err := h.store.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		storeStatus = "unreachable"
		h.log().Warn("health probe: store unreachable", zap.Error(err))
	}

	body := gin.H{
		"status": overall,
		"store":  storeStatus,
	}
	if h.certs != nil {
		cs := h.certs.Status()
		body["certificate"] = gin.H{
			"domain":    cs.Domain,
			"degraded":  cs.Degraded,
			"not_after": cs.NotAfter,
		}
	}
	c.JSON(status, body)
}

// Callback handles the IdP redirect. Exactly one request may consume a given
// state; duplicates (IdP retries, browser prefetch, replays) deterministically
// see the invalid-session page. The raw authorization code never leaves this
// process: the user is redirected back to the bot with only a handoff ID.
func (h *CallbackHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	providerError := c.Query("error")

	if providerError != "" {
		h.log().Warn("authorization denied by user", zap.String("provider_error", providerError))
		h.renderError(c, http.StatusBadRequest, "Authorization Denied",
			"You denied authorization to access your Spotify account. If this was a mistake, use /login again in Telegram.")
		return
	}
	if code == "" || state == "" {
		h.log().Warn("callback missing required parameters")
		h.renderError(c, http.StatusBadRequest, "Invalid Request",
			"Missing required parameters. Please use /login again in Telegram.")
		return
	}

	login, err := h.store.TakeLoginState(c.Request.Context(), state)
	if err != nil {
		h.log().Error("state lookup failed", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Temporary Error",
			"We could not verify your login session. Please use /login again in Telegram.")
		return
	}
	if login == nil {
		// Unknown, consumed, and expired states all land here; the page must
		// not reveal which.
		h.log().Warn("invalid or expired state on callback")
		h.renderError(c, http.StatusBadRequest, "Session Expired",
			"Your login session is invalid or has expired. Please use /login again in Telegram.")
		return
	}

	handoffID, err := randomHandoffID()
	if err != nil {
		h.log().Error("handoff id generation failed", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Temporary Error",
			"Something went wrong on our side. Please use /login again in Telegram.")
		return
	}

	now := time.Now().UTC()
	handoff := domainauth.AuthorizationHandoff{
		ID:           handoffID,
		OwnerID:      login.OwnerID,
		Code:         code,
		State:        login.State,
		CodeVerifier: login.CodeVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.cfg.HandoffTTL),
	}
	if err := h.store.SaveHandoff(c.Request.Context(), handoff); err != nil {
		h.log().Error("failed to persist authorization handoff", zap.Int64("owner_id", login.OwnerID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Temporary Error",
			"We could not complete your login. Please use /login again in Telegram.")
		return
	}

	h.log().Info("authorization code stored for pickup",
		zap.Int64("owner_id", login.OwnerID),
		zap.Time("handoff_expires_at", handoff.ExpiresAt),
	)
	c.Redirect(http.StatusFound, h.cfg.BotDeepLink(handoffID))
}

func (h *CallbackHandler) renderError(c *gin.Context, status int, title, message string) {
	c.Data(status, "text/html; charset=utf-8", renderErrorPage(title, message, h.cfg.BotUsername))
}

func (h *CallbackHandler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}

// randomHandoffID returns a 32-byte URL-safe identifier. Handoff IDs are
// bearer-ish (they gate a pending authorization code) so they must be
// unguessable, never sequential.
func randomHandoffID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("handoff id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
