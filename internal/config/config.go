package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultJWTSecret is the development signing key. It is rejected in production mode.
const DefaultJWTSecret = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`         // "development" or "production"
	BaseURL     string   `mapstructure:"base_url"`     // Public URL, used in confirmation links
	CORSOrigins []string `mapstructure:"cors_origins"` // Allowed browser origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`            // "sqlite" or "postgres"
	DSN             string `mapstructure:"dsn"`               // Connection string
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`    // Maximum idle connections (Postgres)
	MaxOpenConns    int    `mapstructure:"max_open_conns"`    // Maximum open connections (Postgres)
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // Connection max lifetime in minutes (Postgres)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret        string     `mapstructure:"jwt_secret"`         // Secret for JWT signing
	AutoConfirmEmail bool       `mapstructure:"auto_confirm_email"` // Confirm email addresses at sign-up
	OIDC             OIDCConfig `mapstructure:"oidc"`
}

// OIDCConfig holds the optional OpenID Connect provider settings. OIDC
// sign-in is enabled when IssuerURL is set.
type OIDCConfig struct {
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Enabled reports whether OIDC sign-in is configured.
func (c OIDCConfig) Enabled() bool {
	return c.IssuerURL != ""
}

// NotifyConfig holds notification fan-out configuration
type NotifyConfig struct {
	Backend    string `mapstructure:"backend"`     // "memory" or "valkey"
	ValkeyAddr string `mapstructure:"valkey_addr"` // Valkey address (if backend=valkey), e.g., "localhost:6379"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MaintenanceConfig holds the background cleanup schedules (cron syntax)
type MaintenanceConfig struct {
	Enabled                   bool   `mapstructure:"enabled"`
	GrantPurgeSchedule        string `mapstructure:"grant_purge_schedule"`
	NotificationPurgeSchedule string `mapstructure:"notification_purge_schedule"`
	NotificationRetentionDays int    `mapstructure:"notification_retention_days"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for local development
	v.SetDefault("server.port", 8470)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.base_url", "http://localhost:8470")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./portal.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60) // 60 minutes
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.auto_confirm_email", true)
	v.SetDefault("auth.oidc.issuer_url", "")
	v.SetDefault("auth.oidc.client_id", "")
	v.SetDefault("auth.oidc.client_secret", "")
	v.SetDefault("auth.oidc.redirect_url", "http://localhost:8470/api/v1/auth/oidc/callback")
	v.SetDefault("auth.oidc.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("notify.backend", "memory")
	v.SetDefault("notify.valkey_addr", "localhost:6379")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.grant_purge_schedule", "@hourly")
	v.SetDefault("maintenance.notification_purge_schedule", "30 3 * * *")
	v.SetDefault("maintenance.notification_retention_days", 30)

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/portal/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Environment variables override
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %s", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret must be set"))
	}
	if c.Server.Mode == "production" && c.Auth.JWTSecret == DefaultJWTSecret {
		errs = append(errs, errors.New("auth.jwt_secret must be changed in production mode"))
	}
	if c.Auth.OIDC.Enabled() && c.Auth.OIDC.ClientID == "" {
		errs = append(errs, errors.New("auth.oidc.client_id is required when auth.oidc.issuer_url is set"))
	}
	switch c.Notify.Backend {
	case "memory":
	case "valkey":
		if c.Notify.ValkeyAddr == "" {
			errs = append(errs, errors.New("notify.valkey_addr is required for the valkey backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported notify backend: %s", c.Notify.Backend))
	}
	if c.Maintenance.NotificationRetentionDays < 1 {
		errs = append(errs, errors.New("maintenance.notification_retention_days must be at least 1"))
	}

	return errors.Join(errs...)
}
