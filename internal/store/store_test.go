package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Profile{}, &models.UserPermission{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createProfile(t *testing.T, db *gorm.DB, username string, role rbac.Role, status models.ProfileStatus) uuid.UUID {
	t.Helper()
	p := models.Profile{ID: uuid.New(), Username: username, Email: username + "@test.com", Role: role, Status: status}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p.ID
}

func TestProfiles(t *testing.T) {
	db := setupTestDB(t)
	s := NewProfiles(db)
	ctx := context.Background()

	mod := createProfile(t, db, "mod", rbac.RoleModerator, models.ProfileStatusActive)
	createProfile(t, db, "admin", rbac.RoleAdmin, models.ProfileStatusActive)
	createProfile(t, db, "benched", rbac.RoleAdmin, models.ProfileStatusSuspended)
	createProfile(t, db, "member", rbac.RoleMember, models.ProfileStatusActive)

	role, err := s.RoleOf(ctx, mod)
	if err != nil || role != rbac.RoleModerator {
		t.Fatalf("RoleOf: %s, %v", role, err)
	}
	if _, err := s.RoleOf(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	taken, err := s.UsernameTaken(ctx, "mod", uuid.New())
	if err != nil || !taken {
		t.Errorf("expected mod to be taken, got %v, %v", taken, err)
	}
	taken, err = s.UsernameTaken(ctx, "mod", mod)
	if err != nil || taken {
		t.Errorf("a user's own username is not taken, got %v, %v", taken, err)
	}

	reviewers, err := s.WithPermission(ctx, rbac.EditUserRoles)
	if err != nil {
		t.Fatalf("WithPermission: %v", err)
	}
	if len(reviewers) != 1 || reviewers[0].Username != "admin" {
		t.Errorf("expected only the active admin, got %+v", reviewers)
	}

	moderators, err := s.WithPermission(ctx, rbac.ModerateForum)
	if err != nil {
		t.Fatalf("WithPermission: %v", err)
	}
	if len(moderators) != 2 {
		t.Errorf("expected moderator and admin, got %d", len(moderators))
	}
}

func TestGrants(t *testing.T) {
	db := setupTestDB(t)
	s := NewGrants(db)
	ctx := context.Background()
	user, granter := uuid.New(), uuid.New()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if _, err := s.Grant(ctx, user, rbac.ManageUsers, &past, granter); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if _, err := s.Grant(ctx, user, rbac.ViewAuditLogs, &future, granter); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	g, err := s.Grant(ctx, user, rbac.PinForumPost, nil, uuid.Nil)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if g.GrantedBy != nil {
		t.Error("system grants have no granter")
	}

	if ok, _ := s.HasActiveGrant(ctx, user, rbac.ManageUsers, now); ok {
		t.Error("expired grant must not be active")
	}
	if ok, _ := s.HasActiveGrant(ctx, user, rbac.ViewAuditLogs, now); !ok {
		t.Error("future grant should be active")
	}

	active, err := s.ActiveGrants(ctx, user, now)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active grants, got %v", active)
	}

	// Re-granting updates the existing row.
	g, err = s.Grant(ctx, user, rbac.ManageUsers, &future, granter)
	if err != nil {
		t.Fatalf("re-Grant: %v", err)
	}
	if g.ExpiresAt == nil || !g.ExpiresAt.After(now) {
		t.Errorf("expected refreshed expiry, got %v", g.ExpiresAt)
	}
	all, _ := s.ListForUser(ctx, user)
	if len(all) != 3 {
		t.Errorf("expected 3 rows, got %d", len(all))
	}

	purged, err := s.PurgeExpired(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged grants, got %d", purged)
	}

	if err := s.Revoke(ctx, user, rbac.PinForumPost); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := s.Revoke(ctx, user, rbac.PinForumPost); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
