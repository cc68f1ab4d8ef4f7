package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/rbac"
	"gorm.io/gorm"
)

// RoleRequestStatus is the state of an elevation request.
// pending is the only non-terminal state.
type RoleRequestStatus string

const (
	RoleRequestPending  RoleRequestStatus = "pending"
	RoleRequestApproved RoleRequestStatus = "approved"
	RoleRequestRejected RoleRequestStatus = "rejected"
)

// Valid reports whether s is one of the known request states.
func (s RoleRequestStatus) Valid() bool {
	return s == RoleRequestPending || s == RoleRequestApproved || s == RoleRequestRejected
}

// RoleRequest is a member's request to be elevated to alumni or moderator.
// It is resolved exactly once and immutable afterwards.
type RoleRequest struct {
	ID                  uuid.UUID         `gorm:"type:text;primary_key" json:"id"`
	UserID              uuid.UUID         `gorm:"type:text;not null;index" json:"user_id"`
	User                *Profile          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CurrentRole         rbac.Role         `gorm:"not null" json:"current_role"` // snapshot at request time
	RequestedRole       rbac.Role         `gorm:"not null" json:"requested_role"`
	Reason              string            `gorm:"type:text;not null" json:"reason"`
	SupportingDocuments []string          `gorm:"type:text;serializer:json" json:"supporting_documents,omitempty"`
	Status              RoleRequestStatus `gorm:"not null;default:'pending';index" json:"status"`
	ReviewedBy          *uuid.UUID        `gorm:"type:text" json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time        `json:"reviewed_at,omitempty"`
	AdminNotes          string            `gorm:"type:text" json:"admin_notes,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// BeforeCreate hook to generate UUID
func (r *RoleRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
