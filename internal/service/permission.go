package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
	"gorm.io/gorm"
)

// PermissionService manages per-user permission grants.
type PermissionService struct {
	db        *gorm.DB
	evaluator *rbac.Evaluator
	notifier  *notify.Notifier
	now       func() time.Time
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(db *gorm.DB, evaluator *rbac.Evaluator, notifier *notify.Notifier) *PermissionService {
	return &PermissionService{
		db:        db,
		evaluator: evaluator,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Effective lists every permission userID currently holds.
func (s *PermissionService) Effective(ctx context.Context, userID uuid.UUID) ([]rbac.Permission, error) {
	return s.evaluator.EffectivePermissions(ctx, userID)
}

// ListGrants returns userID's grants, expired ones included. The actor
// needs manage_permissions.
func (s *PermissionService) ListGrants(ctx context.Context, actorID, userID uuid.UUID) ([]models.UserPermission, error) {
	if err := s.evaluator.Require(ctx, rbac.ManagePermissions, actorID); err != nil {
		return nil, err
	}
	return store.NewGrants(s.db).ListForUser(ctx, userID)
}

// Grant gives userID permission p until expiresAt, or indefinitely when
// expiresAt is nil. The actor needs manage_permissions.
func (s *PermissionService) Grant(ctx context.Context, actorID, userID uuid.UUID, p rbac.Permission, expiresAt *time.Time) (*models.UserPermission, error) {
	if err := s.evaluator.Require(ctx, rbac.ManagePermissions, actorID); err != nil {
		return nil, err
	}
	grant, err := s.SystemGrant(ctx, actorID, userID, p, expiresAt)
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, userID, models.NotificationInfo, "New permission",
		fmt.Sprintf("You have been granted the %s permission.", p), "/dashboard")
	return grant, nil
}

// SystemGrant grants without checking the actor's permissions. It is used
// by the command line, where actorID is uuid.Nil.
func (s *PermissionService) SystemGrant(ctx context.Context, actorID, userID uuid.UUID, p rbac.Permission, expiresAt *time.Time) (*models.UserPermission, error) {
	if !p.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown permission %q", p)}
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, &ValidationError{Message: "expires_at must be in the future"}
	}

	var grant *models.UserPermission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := store.NewProfiles(tx).Get(ctx, userID); err != nil {
			return err
		}
		var err error
		grant, err = store.NewGrants(tx).Grant(ctx, userID, p, expiresAt, actorID)
		if err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}
		return audit.LogAction(tx, actorID, audit.ActionGrantPermission, audit.Resource("profile", userID),
			map[string]interface{}{"permission": p, "expires_at": expiresAt})
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// Revoke removes userID's grant of p. The actor needs manage_permissions.
func (s *PermissionService) Revoke(ctx context.Context, actorID, userID uuid.UUID, p rbac.Permission) error {
	if err := s.evaluator.Require(ctx, rbac.ManagePermissions, actorID); err != nil {
		return err
	}
	return s.SystemRevoke(ctx, actorID, userID, p)
}

// SystemRevoke revokes without checking the actor's permissions.
func (s *PermissionService) SystemRevoke(ctx context.Context, actorID, userID uuid.UUID, p rbac.Permission) error {
	if !p.Valid() {
		return &ValidationError{Message: fmt.Sprintf("unknown permission %q", p)}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := store.NewGrants(tx).Revoke(ctx, userID, p); err != nil {
			return err
		}
		return audit.LogAction(tx, actorID, audit.ActionRevokePermission, audit.Resource("profile", userID),
			map[string]interface{}{"permission": p})
	})
}
