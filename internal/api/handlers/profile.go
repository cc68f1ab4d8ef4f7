package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/service"
)

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	profiles     *service.ProfileService
	permissions  *service.PermissionService
	registration *service.Registration
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, permissions *service.PermissionService, registration *service.Registration) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, permissions: permissions, registration: registration}
}

// PermissionsResponse lists the caller's effective permissions
type PermissionsResponse struct {
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
}

// GetProfile godoc
// @Summary Get the caller's profile
// @Tags profile
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Profile
// @Failure 404 {object} ErrorResponse
// @Router /profile [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateProfile godoc
// @Summary Create or update the caller's profile
// @Description Omitted fields keep their stored value. Username, full name and avatar default from the identity on first save.
// @Tags profile
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param profile body service.ProfileUpdate true "Profile fields"
// @Success 200 {object} models.Profile
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /profile [put]
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var upd service.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	profile, err := h.profiles.CreateOrUpdateProfile(c.Request.Context(), identity(c), upd)
	if err != nil {
		respondError(c, err, "Failed to save profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// CompleteProfile godoc
// @Summary Complete the caller's profile
// @Description Saves the given fields, requires a full name and department, and returns the caller's dashboard route
// @Tags profile
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param profile body service.ProfileUpdate true "Profile fields"
// @Success 200 {object} service.SessionResult
// @Failure 400 {object} service.SessionResult
// @Router /profile/complete [post]
func (h *ProfileHandler) CompleteProfile(c *gin.Context) {
	var upd service.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, service.ActionResult{Error: "Invalid request body."})
		return
	}

	result, err := h.registration.CompleteProfile(c.Request.Context(), identity(c), upd)
	respondResult(c, http.StatusOK, result, err)
}

// GetPermissions godoc
// @Summary List the caller's effective permissions
// @Description Role permissions plus any unexpired grants
// @Tags profile
// @Security BearerAuth
// @Produce json
// @Success 200 {object} PermissionsResponse
// @Failure 404 {object} ErrorResponse
// @Router /permissions [get]
func (h *ProfileHandler) GetPermissions(c *gin.Context) {
	ctx := c.Request.Context()
	userID := identity(c).UserID

	profile, err := h.profiles.Get(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to load profile")
		return
	}
	perms, err := h.permissions.Effective(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to load permissions")
		return
	}
	c.JSON(http.StatusOK, PermissionsResponse{Role: profile.Role, Permissions: perms})
}
