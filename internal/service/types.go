package service

import (
	"time"

	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/routing"
)

// ProfileUpdate holds the caller-settable profile fields. A nil field is
// left as stored. Role, status and email verification are not settable here.
type ProfileUpdate struct {
	Username    *string `json:"username,omitempty"`
	FullName    *string `json:"full_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Department  *string `json:"department,omitempty"`
	YearOfStudy *int    `json:"year_of_study,omitempty"`
	GithubURL   *string `json:"github_url,omitempty"`
	LinkedinURL *string `json:"linkedin_url,omitempty"`
	WebsiteURL  *string `json:"website_url,omitempty"`
}

// ProfileFilter narrows ListProfiles. Zero values match everything.
type ProfileFilter struct {
	Role   rbac.Role
	Status models.ProfileStatus
	Search string
	Limit  int
	Offset int
}

// CreateRoleRequest holds parameters for requesting a role elevation.
type CreateRoleRequest struct {
	RequestedRole       rbac.RequestableRole
	Reason              string
	SupportingDocuments []string
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	FullName      string `json:"full_name"`
	Username      string `json:"username,omitempty"`
	RequestedRole string `json:"requested_role,omitempty"`
	RequestReason string `json:"request_reason,omitempty"`
}

// ActionResult is the reply shape of the form-facing actions. Error and
// Message are human-readable; there is no error code.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionResult is an ActionResult that may also sign the caller in.
type SessionResult struct {
	ActionResult
	Token     string            `json:"token,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Profile   *models.Profile   `json:"profile,omitempty"`
	Route     *routing.Decision `json:"route,omitempty"`
}
