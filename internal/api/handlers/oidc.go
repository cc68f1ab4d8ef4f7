package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/routing"
	"github.com/voltclub/portal/internal/service"
)

const oidcStateCookie = "oidc_state"

// OIDCHandler drives the OpenID Connect sign-in redirect flow.
type OIDCHandler struct {
	oidc          *auth.OIDCAuthenticator
	registration  *service.Registration
	secureCookies bool
}

// NewOIDCHandler creates an OIDCHandler.
func NewOIDCHandler(oidc *auth.OIDCAuthenticator, registration *service.Registration, secureCookies bool) *OIDCHandler {
	return &OIDCHandler{oidc: oidc, registration: registration, secureCookies: secureCookies}
}

// Login godoc
// @Summary Initiate OIDC login
// @Description Redirects user to OIDC provider for authentication
// @Tags auth
// @Success 307 {string} string "Redirect to OIDC provider"
// @Router /auth/oidc/login [get]
func (h *OIDCHandler) Login(c *gin.Context) {
	// Random state for CSRF protection
	state, err := generateRandomState()
	if err != nil {
		slog.Error("Failed to generate state", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oidcStateCookie, state, 600, "/", "", h.secureCookies, true)
	c.Redirect(http.StatusTemporaryRedirect, h.oidc.GetAuthURL(state))
}

// Callback godoc
// @Summary Handle OIDC callback
// @Description Completes the OIDC exchange, signs the caller in and redirects to their dashboard route
// @Tags auth
// @Param code query string true "Authorization code"
// @Param state query string true "State parameter"
// @Success 307 {string} string "Redirect to dashboard or login"
// @Failure 400 {object} ErrorResponse
// @Router /auth/oidc/callback [get]
func (h *OIDCHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	storedState, err := c.Cookie(oidcStateCookie)
	if err != nil || state == "" || state != storedState {
		slog.Warn("Invalid OIDC state")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid state parameter"})
		return
	}
	c.SetCookie(oidcStateCookie, "", -1, "/", "", h.secureCookies, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing authorization code"})
		return
	}

	resp, err := h.oidc.HandleCallback(c.Request.Context(), code)
	if err != nil {
		slog.Error("OIDC callback failed", "error", err)
		c.Redirect(http.StatusTemporaryRedirect, routing.LoginPath+"?error=oauth_failed")
		return
	}

	result, err := h.registration.CompleteLogin(c.Request.Context(), resp, "oidc")
	if err != nil {
		if errors.Is(err, service.ErrAccountBlocked) && result.Route != nil {
			c.Redirect(http.StatusTemporaryRedirect, result.Route.Target)
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, routing.LoginPath+"?error=oauth_failed")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, result.Token, int(auth.TokenDuration.Seconds()), "/", "", h.secureCookies, true)
	c.Redirect(http.StatusTemporaryRedirect, result.Route.Target)
}

// generateRandomState generates a random state string for CSRF protection
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
