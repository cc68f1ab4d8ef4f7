package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valkey-io/valkey-go"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/config"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/service"
	"github.com/voltclub/portal/internal/store"
	"github.com/voltclub/portal/internal/worker"
	"gorm.io/gorm"
)

// App is the wired set of services shared by the HTTP server and the CLI.
type App struct {
	DB           *gorm.DB
	Metrics      *metrics.Metrics
	Policy       *rbac.Policy
	Evaluator    *rbac.Evaluator
	Broker       *notify.Broker
	Notifier     *notify.Notifier
	Auth         *auth.BasicAuthenticator
	OIDC         *auth.OIDCAuthenticator // nil unless configured
	Profiles     *service.ProfileService
	RoleRequests *service.RoleRequestService
	Permissions  *service.PermissionService
	Registration *service.Registration
	Worker       *worker.Worker

	valkey valkey.Client // nil for the memory backend
}

// NewApp wires every service on top of an opened, migrated database.
func NewApp(ctx context.Context, cfg *config.Config, database *gorm.DB) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	policy, err := rbac.NewPolicy(database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RBAC policy: %w", err)
	}

	grants := store.NewGrants(database)
	evaluator := rbac.NewEvaluator(policy, store.NewProfiles(database), grants,
		rbac.WithMetrics(m), rbac.WithLogger(slog.Default()))

	app := &App{
		DB:        database,
		Metrics:   m,
		Policy:    policy,
		Evaluator: evaluator,
		Broker:    notify.NewBroker(),
	}

	var publisher notify.Publisher = app.Broker
	switch cfg.Notify.Backend {
	case "valkey":
		client, err := notify.NewValkeyClient(cfg.Notify.ValkeyAddr)
		if err != nil {
			return nil, err
		}
		app.valkey = client
		publisher = notify.NewValkeyPublisher(client)
	case "memory", "":
	default:
		return nil, fmt.Errorf("unsupported notify backend: %s (supported: memory, valkey)", cfg.Notify.Backend)
	}
	app.Notifier = notify.New(database, publisher, m)

	app.Auth = auth.NewBasicAuthenticator(database, cfg.Auth.JWTSecret)
	app.Auth.SetAutoConfirm(cfg.Auth.AutoConfirmEmail)

	if cfg.Auth.OIDC.Enabled() {
		app.OIDC, err = auth.NewOIDCAuthenticator(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.Auth.OIDC.IssuerURL,
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  cfg.Auth.OIDC.RedirectURL,
			Scopes:       cfg.Auth.OIDC.Scopes,
		}, database, app.Auth)
		if err != nil {
			app.Close()
			return nil, err
		}
		slog.Info("OIDC sign-in enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	app.Profiles = service.NewProfileService(database, evaluator, app.Notifier)
	app.RoleRequests = service.NewRoleRequestService(database, evaluator, app.Notifier, m)
	app.Permissions = service.NewPermissionService(database, evaluator, app.Notifier)
	app.Registration = service.NewRegistration(database, app.Auth, app.Profiles, app.RoleRequests, app.Notifier,
		service.LogConfirmationSender{BaseURL: cfg.Server.BaseURL}, m)
	app.Worker = worker.New(grants, app.Notifier, m, cfg.Maintenance, slog.Default())

	return app, nil
}

// Relay feeds the local broker from Valkey. It returns immediately with nil
// for the memory backend.
func (a *App) Relay(ctx context.Context) error {
	if a.valkey == nil {
		return nil
	}
	return notify.Relay(ctx, a.valkey, a.Broker)
}

// Close releases external connections.
func (a *App) Close() {
	if a.valkey != nil {
		a.valkey.Close()
	}
}
