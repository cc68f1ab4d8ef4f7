package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/rbac"
)

// ProfileStatus gates dashboard access independently of the role.
type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusInactive  ProfileStatus = "inactive"
	ProfileStatusSuspended ProfileStatus = "suspended"
	ProfileStatusPending   ProfileStatus = "pending"
)

// Valid reports whether s is one of the known statuses.
func (s ProfileStatus) Valid() bool {
	switch s {
	case ProfileStatusActive, ProfileStatusInactive, ProfileStatusSuspended, ProfileStatusPending:
		return true
	}
	return false
}

// Profile is the portal's record of a member. Its ID is the Account ID.
// Profiles are never hard-deleted; deactivation is a status change.
type Profile struct {
	ID               uuid.UUID     `gorm:"type:text;primary_key" json:"id"`
	Username         string        `gorm:"uniqueIndex;not null" json:"username"`
	Email            string        `gorm:"index;not null" json:"email"`
	FullName         string        `json:"full_name"`
	AvatarURL        string        `json:"avatar_url,omitempty"`
	Role             rbac.Role     `gorm:"not null;default:'member';index" json:"role"`
	Status           ProfileStatus `gorm:"not null;default:'active';index" json:"status"`
	ProfileCompleted bool          `gorm:"not null;default:false" json:"profile_completed"`
	EmailVerified    bool          `gorm:"not null;default:false" json:"email_verified"`

	// Free-form attributes
	Bio         string `gorm:"type:text" json:"bio,omitempty"`
	Department  string `json:"department,omitempty"`
	YearOfStudy int    `json:"year_of_study,omitempty"`
	GithubURL   string `json:"github_url,omitempty"`
	LinkedinURL string `json:"linkedin_url,omitempty"`
	WebsiteURL  string `json:"website_url,omitempty"`
	Points      int    `gorm:"not null;default:0" json:"points"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
