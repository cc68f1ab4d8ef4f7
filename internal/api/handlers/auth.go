package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/routing"
	"github.com/voltclub/portal/internal/service"
)

// AuthHandler serves sign-up, sign-in and the caller's session details.
type AuthHandler struct {
	registration  *service.Registration
	profiles      *service.ProfileService
	permissions   *service.PermissionService
	secureCookies bool
}

// NewAuthHandler creates an AuthHandler. secureCookies marks the session
// cookie Secure and should be set when serving over HTTPS.
func NewAuthHandler(registration *service.Registration, profiles *service.ProfileService, permissions *service.PermissionService, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		registration:  registration,
		profiles:      profiles,
		permissions:   permissions,
		secureCookies: secureCookies,
	}
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	User        *auth.Identity    `json:"user"`
	Profile     *models.Profile   `json:"profile"`
	Permissions []rbac.Permission `json:"permissions"`
}

// Register godoc
// @Summary Register a new account
// @Description Creates the account, a member profile and an optional role request. Signs the caller in when no email confirmation is required.
// @Tags auth
// @Accept json
// @Produce json
// @Param registration body service.RegisterRequest true "Registration details"
// @Success 201 {object} service.SessionResult
// @Failure 400 {object} service.SessionResult
// @Failure 409 {object} service.SessionResult
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, service.ActionResult{Error: "Email and password are required."})
		return
	}

	result, err := h.registration.Register(c.Request.Context(), req)
	if err == nil {
		h.setSessionCookie(c, result.Token)
	}
	respondResult(c, http.StatusCreated, result, err)
}

// Login godoc
// @Summary User login
// @Description Authenticate with email and password and return a session token with the dashboard route
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body auth.LoginRequest true "Login credentials"
// @Success 200 {object} service.SessionResult
// @Failure 400 {object} service.SessionResult
// @Failure 401 {object} service.SessionResult
// @Failure 403 {object} service.SessionResult
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, service.ActionResult{Error: "Email and password are required."})
		return
	}

	result, err := h.registration.Login(c.Request.Context(), req.Email, req.Password)
	if err == nil {
		h.setSessionCookie(c, result.Token)
	}
	respondResult(c, http.StatusOK, result, err)
}

// Logout godoc
// @Summary Log out
// @Description Clears the session cookie. Bearer tokens expire on their own.
// @Tags auth
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, MessageResponse{Message: "Signed out."})
}

// ConfirmEmail godoc
// @Summary Confirm an email address
// @Tags auth
// @Produce json
// @Param token query string true "Confirmation token"
// @Success 200 {object} service.ActionResult
// @Failure 400 {object} service.ActionResult
// @Router /auth/confirm [get]
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, service.ActionResult{Error: "Missing confirmation token."})
		return
	}

	result, err := h.registration.ConfirmEmail(c.Request.Context(), token)
	respondResult(c, http.StatusOK, result, err)
}

// Me godoc
// @Summary Get current user
// @Description Returns the caller's identity, profile and effective permissions
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	id := identity(c)
	resp := MeResponse{User: id, Permissions: []rbac.Permission{}}

	profile, err := h.profiles.Get(c.Request.Context(), id.UserID)
	switch {
	case err == nil:
		resp.Profile = profile
		perms, err := h.permissions.Effective(c.Request.Context(), id.UserID)
		if err != nil {
			respondError(c, err, "Failed to load permissions")
			return
		}
		resp.Permissions = perms
	case !errors.Is(err, service.ErrNotFound):
		respondError(c, err, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Route godoc
// @Summary Where the caller belongs after signing in
// @Description Runs the post-login checks (profile, completion, status, role) and returns the resulting decision
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} routing.Decision
// @Failure 401 {object} ErrorResponse
// @Router /auth/route [get]
func (h *AuthHandler) Route(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), identity(c).UserID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		respondError(c, err, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, routing.AfterLogin(profile))
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	if token == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, token, int(auth.TokenDuration.Seconds()), "/", "", h.secureCookies, true)
}
