package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
	"gorm.io/gorm"
)

// LogAction records an audit log entry. db may be a transaction, in which
// case the entry commits or rolls back with it.
func LogAction(db *gorm.DB, userID uuid.UUID, action, resource string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil || details == nil {
		detailsJSON = []byte("{}")
	}

	log := models.AuditLog{
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		DetailsJSON: string(detailsJSON),
		Timestamp:   time.Now().UTC(),
	}

	return db.Create(&log).Error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UserID uuid.UUID
	Action string
	Limit  int
}

// List returns the most recent entries first.
func List(ctx context.Context, db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := db.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if f.UserID != uuid.Nil {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// Resource formats a "kind:id" resource reference.
func Resource(kind string, id fmt.Stringer) string {
	return kind + ":" + id.String()
}

// Audit actions constants
const (
	ActionRegister           = "register"
	ActionLogin              = "login"
	ActionLoginFailed        = "login_failed"
	ActionConfirmEmail       = "confirm_email"
	ActionUpdateProfile      = "update_profile"
	ActionCompleteProfile    = "complete_profile"
	ActionChangeRole         = "change_role"
	ActionChangeStatus       = "change_status"
	ActionRequestRole        = "request_role"
	ActionApproveRoleRequest = "approve_role_request"
	ActionRejectRoleRequest  = "reject_role_request"
	ActionGrantPermission    = "grant_permission"
	ActionRevokePermission   = "revoke_permission"
	ActionCreateAdmin        = "create_admin"
)
