package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/voltclub/portal/internal/config"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/service"
)

func setupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PORTAL_DATABASE_DSN", filepath.Join(t.TempDir(), "portal.db"))
	t.Setenv("PORTAL_LOG_LEVEL", "error")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestSetupAndNewApp(t *testing.T) {
	setupTestConfig(t)

	cfg, database, err := Setup()
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	app, err := NewApp(context.Background(), cfg, database)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.OIDC != nil {
		t.Error("OIDC should be disabled without an issuer")
	}
	if err := app.Relay(context.Background()); err != nil {
		t.Errorf("Relay() with memory backend = %v, want nil", err)
	}

	ctx := context.Background()
	identity, _, err := app.Auth.SignUp(ctx, "wire@example.com", "solder-sucker", models.AccountMetadata{FullName: "Wire Wrap"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	profile, err := app.Profiles.CreateOrUpdateProfile(ctx, identity, service.ProfileUpdate{})
	if err != nil {
		t.Fatalf("CreateOrUpdateProfile() error = %v", err)
	}
	if profile.Role != rbac.RoleMember {
		t.Errorf("Role = %q, want %q", profile.Role, rbac.RoleMember)
	}
	if !app.Evaluator.HasPermission(ctx, rbac.CreateProject, identity.UserID) {
		t.Error("student should be able to view events")
	}
	if _, err := app.Worker.RunOnce(ctx); err != nil {
		t.Errorf("RunOnce() error = %v", err)
	}
}

func TestNewApp_UnsupportedBackend(t *testing.T) {
	setupTestConfig(t)
	cfg, database, err := Setup()
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	cfg.Notify.Backend = "kafka"
	if _, err := NewApp(context.Background(), cfg, database); err == nil {
		t.Fatal("expected error for unsupported notify backend")
	}
}

func TestSetup_InvalidConfig(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("PORTAL_SERVER_MODE", "production")
	if _, _, err := Setup(); err == nil {
		t.Fatal("expected default JWT secret to be rejected in production")
	}
}
