package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/service"
)

// RoleRequestHandler serves role elevation requests for members and reviewers.
type RoleRequestHandler struct {
	requests     *service.RoleRequestService
	registration *service.Registration
}

// NewRoleRequestHandler creates a RoleRequestHandler.
func NewRoleRequestHandler(requests *service.RoleRequestService, registration *service.Registration) *RoleRequestHandler {
	return &RoleRequestHandler{requests: requests, registration: registration}
}

// CreateRoleRequestBody is the request body for filing a role request
type CreateRoleRequestBody struct {
	RequestedRole       string   `json:"requested_role" binding:"required"`
	Reason              string   `json:"reason" binding:"required"`
	SupportingDocuments []string `json:"supporting_documents,omitempty"`
}

// ReviewRoleRequestBody is the request body for approving or rejecting
type ReviewRoleRequestBody struct {
	Notes string `json:"notes"`
}

// Create godoc
// @Summary Request a role elevation
// @Description Files a pending request for alumni or moderator. Only one request may be pending at a time.
// @Tags role-requests
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateRoleRequestBody true "Requested role and reason"
// @Success 201 {object} service.ActionResult
// @Failure 400 {object} service.ActionResult
// @Failure 409 {object} service.ActionResult
// @Router /role-requests [post]
func (h *RoleRequestHandler) Create(c *gin.Context) {
	var req CreateRoleRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, service.ActionResult{Error: "A requested role and a reason are required."})
		return
	}

	result, err := h.registration.RequestRoleChange(c.Request.Context(), identity(c).UserID, req.RequestedRole, req.Reason, req.SupportingDocuments)
	respondResult(c, http.StatusCreated, result, err)
}

// ListMine godoc
// @Summary List the caller's role requests
// @Tags role-requests
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.RoleRequest
// @Router /role-requests/mine [get]
func (h *RoleRequestHandler) ListMine(c *gin.Context) {
	requests, err := h.requests.ListMine(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to fetch role requests")
		return
	}
	c.JSON(http.StatusOK, requests)
}

// Get godoc
// @Summary Get a role request
// @Description Visible to the requester and to reviewers
// @Tags role-requests
// @Security BearerAuth
// @Produce json
// @Param id path string true "Role request ID"
// @Success 200 {object} models.RoleRequest
// @Failure 404 {object} ErrorResponse
// @Router /role-requests/{id} [get]
func (h *RoleRequestHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rr, err := h.requests.Get(c.Request.Context(), identity(c).UserID, id)
	if err != nil {
		respondError(c, err, "Failed to fetch role request")
		return
	}
	c.JSON(http.StatusOK, rr)
}

// List godoc
// @Summary List role requests for review (reviewers only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "pending (default), approved, rejected or all"
// @Success 200 {array} models.RoleRequest
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /admin/role-requests [get]
func (h *RoleRequestHandler) List(c *gin.Context) {
	status := models.RoleRequestStatus(c.DefaultQuery("status", string(models.RoleRequestPending)))
	if status == "all" {
		status = ""
	}

	requests, err := h.requests.List(c.Request.Context(), identity(c).UserID, status)
	if err != nil {
		respondError(c, err, "Failed to fetch role requests")
		return
	}
	c.JSON(http.StatusOK, requests)
}

// Approve godoc
// @Summary Approve a pending role request (reviewers only)
// @Description Grants the requested role. A request can be resolved only once.
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Role request ID"
// @Param review body ReviewRoleRequestBody false "Reviewer notes"
// @Success 200 {object} service.ActionResult
// @Failure 403 {object} service.ActionResult
// @Failure 404 {object} service.ActionResult
// @Failure 409 {object} service.ActionResult
// @Router /admin/role-requests/{id}/approve [post]
func (h *RoleRequestHandler) Approve(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body ReviewRoleRequestBody
	_ = c.ShouldBindJSON(&body) // notes are optional

	result, err := h.registration.ApproveRoleRequest(c.Request.Context(), identity(c).UserID, id, body.Notes)
	respondResult(c, http.StatusOK, result, err)
}

// Reject godoc
// @Summary Reject a pending role request (reviewers only)
// @Description Notes are required and are shown to the requester.
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Role request ID"
// @Param review body ReviewRoleRequestBody true "Rejection reason"
// @Success 200 {object} service.ActionResult
// @Failure 400 {object} service.ActionResult
// @Failure 409 {object} service.ActionResult
// @Router /admin/role-requests/{id}/reject [post]
func (h *RoleRequestHandler) Reject(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body ReviewRoleRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, service.ActionResult{Error: "A reason for the rejection is required."})
		return
	}

	result, err := h.registration.RejectRoleRequest(c.Request.Context(), identity(c).UserID, id, body.Notes)
	respondResult(c, http.StatusOK, result, err)
}
