package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of who changed what.
// UserID is uuid.Nil for actions taken by the system itself.
type AuditLog struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uuid.UUID `gorm:"type:text;index" json:"user_id"`
	Action      string    `gorm:"not null;index" json:"action"`  // e.g., "approve_role_request", "update_profile"
	Resource    string    `gorm:"not null" json:"resource"`      // e.g., "role_request:<id>", "profile:<id>"
	DetailsJSON string    `gorm:"type:text" json:"details_json"` // Additional context in JSON
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}
