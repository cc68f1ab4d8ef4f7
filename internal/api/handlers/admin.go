package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/service"
	"gorm.io/gorm"
)

// AdminHandler serves user management, permission grants and the audit log.
type AdminHandler struct {
	db          *gorm.DB
	profiles    *service.ProfileService
	permissions *service.PermissionService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, profiles *service.ProfileService, permissions *service.PermissionService) *AdminHandler {
	return &AdminHandler{db: db, profiles: profiles, permissions: permissions}
}

// SetRoleRequest is the request body for changing a member's role
type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetStatusRequest is the request body for changing a member's status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// GrantPermissionRequest is the request body for granting a permission
type GrantPermissionRequest struct {
	Permission string     `json:"permission" binding:"required"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ListUsers godoc
// @Summary List member profiles (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param role query string false "Filter by role"
// @Param status query string false "Filter by status"
// @Param search query string false "Match username, name or email"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Profile
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	filter := service.ProfileFilter{
		Role:   rbac.Role(c.Query("role")),
		Status: models.ProfileStatus(c.Query("status")),
		Search: c.Query("search"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	profiles, err := h.profiles.ListProfiles(c.Request.Context(), identity(c).UserID, filter)
	if err != nil {
		respondError(c, err, "Failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, profiles)
}

// SetRole godoc
// @Summary Change a member's role (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param role body SetRoleRequest true "New role"
// @Success 200 {object} models.Profile
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{id}/role [put]
func (h *AdminHandler) SetRole(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "role is required"})
		return
	}

	profile, err := h.profiles.SetRole(c.Request.Context(), identity(c).UserID, userID, rbac.Role(req.Role))
	if err != nil {
		respondError(c, err, "Failed to change role")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SetStatus godoc
// @Summary Change a member's account status (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param status body SetStatusRequest true "New status"
// @Success 200 {object} models.Profile
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{id}/status [put]
func (h *AdminHandler) SetStatus(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status is required"})
		return
	}

	profile, err := h.profiles.SetStatus(c.Request.Context(), identity(c).UserID, userID, models.ProfileStatus(req.Status))
	if err != nil {
		respondError(c, err, "Failed to change status")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ListGrants godoc
// @Summary List a member's permission grants (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} models.UserPermission
// @Router /admin/users/{id}/permissions [get]
func (h *AdminHandler) ListGrants(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	grants, err := h.permissions.ListGrants(c.Request.Context(), identity(c).UserID, userID)
	if err != nil {
		respondError(c, err, "Failed to fetch grants")
		return
	}
	c.JSON(http.StatusOK, grants)
}

// GrantPermission godoc
// @Summary Grant a permission to a member (admin only)
// @Description Granting an already held permission replaces its expiry.
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param grant body GrantPermissionRequest true "Permission and optional expiry"
// @Success 201 {object} models.UserPermission
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{id}/permissions [post]
func (h *AdminHandler) GrantPermission(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "permission is required"})
		return
	}

	grant, err := h.permissions.Grant(c.Request.Context(), identity(c).UserID, userID, rbac.Permission(req.Permission), req.ExpiresAt)
	if err != nil {
		respondError(c, err, "Failed to grant permission")
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// RevokePermission godoc
// @Summary Revoke a member's permission grant (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Param permission query string true "Permission to revoke"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{id}/permissions [delete]
func (h *AdminHandler) RevokePermission(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	perm := c.Query("permission")
	if perm == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "permission is required"})
		return
	}

	if err := h.permissions.Revoke(c.Request.Context(), identity(c).UserID, userID, rbac.Permission(perm)); err != nil {
		respondError(c, err, "Failed to revoke permission")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Permission revoked"})
}

// ListAuditLogs godoc
// @Summary List audit log entries (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param user_id query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param limit query int false "Maximum entries (default 100, max 500)"
// @Success 200 {array} models.AuditLog
// @Failure 400 {object} ErrorResponse
// @Router /admin/audit-logs [get]
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	filter := audit.Filter{
		Action: c.Query("action"),
		Limit:  queryInt(c, "limit", 100),
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid user_id"})
			return
		}
		filter.UserID = id
	}

	logs, err := audit.List(c.Request.Context(), h.db, filter)
	if err != nil {
		respondError(c, err, "Failed to fetch audit logs")
		return
	}
	c.JSON(http.StatusOK, logs)
}
