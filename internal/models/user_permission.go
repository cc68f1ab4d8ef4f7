package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/rbac"
)

// UserPermission is a per-user permission grant on top of the role's static set.
// A grant whose ExpiresAt is in the past is treated as absent.
type UserPermission struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	UserID     uuid.UUID       `gorm:"type:text;not null;uniqueIndex:idx_user_permission" json:"user_id"`
	Permission rbac.Permission `gorm:"not null;uniqueIndex:idx_user_permission" json:"permission"`
	ExpiresAt  *time.Time      `gorm:"index" json:"expires_at,omitempty"`
	GrantedBy  *uuid.UUID      `gorm:"type:text" json:"granted_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Active reports whether the grant is in force at now.
func (p *UserPermission) Active(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
