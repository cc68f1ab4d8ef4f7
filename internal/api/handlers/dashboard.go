package handlers

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/api/middleware"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/routing"
	"github.com/voltclub/portal/internal/service"
)

// DashboardHandler turns routing decisions into redirects and serves the
// per-role dashboard summaries.
type DashboardHandler struct {
	profiles    *service.ProfileService
	permissions *service.PermissionService
	requests    *service.RoleRequestService
	notifier    *notify.Notifier
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(profiles *service.ProfileService, permissions *service.PermissionService, requests *service.RoleRequestService, notifier *notify.Notifier) *DashboardHandler {
	return &DashboardHandler{profiles: profiles, permissions: permissions, requests: requests, notifier: notifier}
}

// DashboardSummary is the data behind a dashboard page
type DashboardSummary struct {
	Section             rbac.Role            `json:"section"`
	Profile             *models.Profile      `json:"profile"`
	Permissions         []rbac.Permission    `json:"permissions"`
	UnreadNotifications int64                `json:"unread_notifications"`
	MyRoleRequests      []models.RoleRequest `json:"my_role_requests"`
	PendingRoleRequests *int                 `json:"pending_role_requests,omitempty"` // reviewers only
}

// Enter godoc
// @Summary Redirect to the caller's dashboard
// @Description Applies the post-login checks and redirects to the dashboard, the profile form or the login page
// @Tags dashboard
// @Success 302 {string} string "Redirect"
// @Router /dashboard [get]
func (h *DashboardHandler) Enter(c *gin.Context) {
	id := identity(c)
	if id == nil {
		c.Redirect(http.StatusFound, routing.LoginPath)
		return
	}

	profile, ok := h.loadProfile(c)
	if !ok {
		return
	}
	c.Redirect(http.StatusFound, routing.AfterLogin(profile).Target)
}

// Page godoc
// @Summary Open a dashboard page
// @Description Returns the summary when the caller may open the page, otherwise redirects
// @Tags dashboard
// @Produce json
// @Param section path string true "member, alumni, moderator or admin"
// @Success 200 {object} DashboardSummary
// @Success 302 {string} string "Redirect"
// @Failure 404 {object} ErrorResponse
// @Router /dashboard/{section} [get]
func (h *DashboardHandler) Page(c *gin.Context) {
	section, ok := rbac.ParseRole(c.Param("section"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown dashboard"})
		return
	}
	if identity(c) == nil {
		c.Redirect(http.StatusFound, routing.LoginPath)
		return
	}

	profile, ok := h.loadProfile(c)
	if !ok {
		return
	}
	if decision := routing.Guard(profile, section); !decision.Allowed() {
		c.Redirect(http.StatusFound, decision.Target)
		return
	}
	h.writeSummary(c, section, profile)
}

// Summary godoc
// @Summary Get a dashboard summary
// @Description Requires an active profile with at least the section's role
// @Tags dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} DashboardSummary
// @Failure 403 {object} ErrorResponse
// @Router /dashboard/member [get]
// @Router /dashboard/alumni [get]
// @Router /dashboard/moderator [get]
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Summary(section rbac.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.writeSummary(c, section, middleware.ProfileFromContext(c))
	}
}

func (h *DashboardHandler) loadProfile(c *gin.Context) (*models.Profile, bool) {
	profile, err := h.profiles.Get(c.Request.Context(), identity(c).UserID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		respondError(c, err, "Failed to load profile")
		return nil, false
	}
	return profile, true
}

func (h *DashboardHandler) writeSummary(c *gin.Context, section rbac.Role, profile *models.Profile) {
	ctx := c.Request.Context()

	perms, err := h.permissions.Effective(ctx, profile.ID)
	if err != nil {
		respondError(c, err, "Failed to load permissions")
		return
	}
	unread, err := h.notifier.UnreadCount(ctx, profile.ID)
	if err != nil {
		respondError(c, err, "Failed to count notifications")
		return
	}
	mine, err := h.requests.ListMine(ctx, profile.ID)
	if err != nil {
		respondError(c, err, "Failed to fetch role requests")
		return
	}

	summary := DashboardSummary{
		Section:             section,
		Profile:             profile,
		Permissions:         perms,
		UnreadNotifications: unread,
		MyRoleRequests:      mine,
	}
	if slices.Contains(perms, rbac.EditUserRoles) {
		pending, err := h.requests.List(ctx, profile.ID, models.RoleRequestPending)
		if err != nil {
			respondError(c, err, "Failed to fetch role requests")
			return
		}
		n := len(pending)
		summary.PendingRoleRequests = &n
	}

	c.JSON(http.StatusOK, summary)
}
