package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"gorm.io/gorm"
)

// Profiles reads profile rows.
type Profiles struct {
	db *gorm.DB
}

// NewProfiles creates a profile store.
func NewProfiles(db *gorm.DB) *Profiles {
	return &Profiles{db: db}
}

// Get returns the profile for userID, or ErrNotFound.
func (s *Profiles) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// RoleOf returns the role on userID's profile. It satisfies rbac.RoleSource.
func (s *Profiles) RoleOf(ctx context.Context, userID uuid.UUID) (rbac.Role, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Select("id", "role").Where("id = ?", userID).First(&p).Error
	if err != nil {
		return "", fmt.Errorf("resolve role for %s: %w", userID, notFound(err))
	}
	return p.Role, nil
}

// UsernameTaken reports whether username belongs to someone other than userID.
func (s *Profiles) UsernameTaken(ctx context.Context, username string, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("username = ? AND id <> ?", username, userID).
		Count(&count).Error
	return count > 0, err
}

// WithPermission lists active profiles holding p through their role.
// Grants are not consulted.
func (s *Profiles) WithPermission(ctx context.Context, p rbac.Permission) ([]models.Profile, error) {
	var roles []rbac.Role
	for _, r := range rbac.Roles() {
		for _, held := range rbac.PermissionsFor(r) {
			if held == p {
				roles = append(roles, r)
				break
			}
		}
	}
	if len(roles) == 0 {
		return nil, nil
	}

	var profiles []models.Profile
	err := s.db.WithContext(ctx).
		Where("role IN ? AND status = ?", roles, models.ProfileStatusActive).
		Find(&profiles).Error
	return profiles, err
}
