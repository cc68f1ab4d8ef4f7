package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Grants manages the user_permissions table. It satisfies rbac.GrantSource.
type Grants struct {
	db *gorm.DB
}

// NewGrants creates a grant store.
func NewGrants(db *gorm.DB) *Grants {
	return &Grants{db: db}
}

func (s *Grants) active(ctx context.Context, userID uuid.UUID, now time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.UserPermission{}).
		Where("user_id = ? AND (expires_at IS NULL OR expires_at > ?)", userID, now.UTC())
}

// HasActiveGrant reports whether userID holds an unexpired grant for p.
func (s *Grants) HasActiveGrant(ctx context.Context, userID uuid.UUID, p rbac.Permission, now time.Time) (bool, error) {
	var count int64
	if err := s.active(ctx, userID, now).Where("permission = ?", p).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ActiveGrants lists the permissions userID holds through unexpired grants.
func (s *Grants) ActiveGrants(ctx context.Context, userID uuid.UUID, now time.Time) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	if err := s.active(ctx, userID, now).Order("permission").Pluck("permission", &perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// Grant creates or replaces the grant of p to userID. A nil expiresAt never expires.
func (s *Grants) Grant(ctx context.Context, userID uuid.UUID, p rbac.Permission, expiresAt *time.Time, grantedBy uuid.UUID) (*models.UserPermission, error) {
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}
	grant := models.UserPermission{
		UserID:     userID,
		Permission: p,
		ExpiresAt:  expiresAt,
	}
	if grantedBy != uuid.Nil {
		grant.GrantedBy = &grantedBy
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "granted_by", "updated_at"}),
	}).Create(&grant).Error
	if err != nil {
		return nil, err
	}

	// Re-read so the caller sees the stored row even when the insert became an update.
	var stored models.UserPermission
	if err := s.db.WithContext(ctx).Where("user_id = ? AND permission = ?", userID, p).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// Revoke deletes the grant of p to userID. It returns ErrNotFound when there is none.
func (s *Grants) Revoke(ctx context.Context, userID uuid.UUID, p rbac.Permission) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND permission = ?", userID, p).
		Delete(&models.UserPermission{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns all grants for userID, expired ones included.
func (s *Grants) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserPermission, error) {
	var grants []models.UserPermission
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("permission").Find(&grants).Error
	return grants, err
}

// PurgeExpired deletes grants that expired before now and returns how many were removed.
func (s *Grants) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Delete(&models.UserPermission{})
	return result.RowsAffected, result.Error
}
