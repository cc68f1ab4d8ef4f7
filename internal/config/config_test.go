package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8470 {
		t.Errorf("expected port 8470, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Database.Driver)
	}
	if !cfg.Auth.AutoConfirmEmail {
		t.Error("expected email auto-confirmation by default")
	}
	if cfg.Auth.OIDC.Enabled() {
		t.Error("OIDC should be disabled by default")
	}
	if cfg.Notify.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Notify.Backend)
	}
	if cfg.Maintenance.NotificationRetentionDays != 30 {
		t.Errorf("expected 30 retention days, got %d", cfg.Maintenance.NotificationRetentionDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `server:
  port: 9000
  mode: production
auth:
  jwt_secret: from-file
  auto_confirm_email: false
notify:
  backend: valkey
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("PORTAL_SERVER_PORT", "9100")
	t.Setenv("PORTAL_NOTIFY_VALKEY_ADDR", "valkey:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env should override file, got port %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "from-file" || cfg.Auth.AutoConfirmEmail {
		t.Errorf("expected auth settings from file, got %+v", cfg.Auth)
	}
	if cfg.Notify.Backend != "valkey" || cfg.Notify.ValkeyAddr != "valkey:6379" {
		t.Errorf("unexpected notify config %+v", cfg.Notify)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:      ServerConfig{Port: 8470, Mode: "development"},
			Database:    DatabaseConfig{Driver: "sqlite"},
			Auth:        AuthConfig{JWTSecret: DefaultJWTSecret},
			Notify:      NotifyConfig{Backend: "memory"},
			Maintenance: MaintenanceConfig{NotificationRetentionDays: 7},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"default secret in production", func(c *Config) { c.Server.Mode = "production" }, "jwt_secret"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database driver"},
		{"bad backend", func(c *Config) { c.Notify.Backend = "kafka" }, "notify backend"},
		{"oidc without client", func(c *Config) { c.Auth.OIDC.IssuerURL = "https://id.example.com" }, "client_id"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no retention", func(c *Config) { c.Maintenance.NotificationRetentionDays = 0 }, "retention"},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
