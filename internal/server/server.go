// Package server provides the main server initialization and run logic.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voltclub/portal/internal/api"
	"github.com/voltclub/portal/internal/api/handlers"
	"github.com/voltclub/portal/internal/config"
	"github.com/voltclub/portal/internal/db"
	"github.com/voltclub/portal/internal/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Config holds the server configuration options.
type Config struct {
	Port    int    // Port to run the server on (0 = use config default)
	Version string // Version string to report
}

// Setup loads configuration, initializes logging and opens and migrates the
// database. It is shared by every command that touches the database.
func Setup() (*config.Config, *gorm.DB, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(appCfg.Log.Format, appCfg.Log.Level)

	if err := appCfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.New(appCfg.Database, appCfg.Log.Level == "debug")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Database initialized", "driver", appCfg.Database.Driver)

	if err := db.Migrate(database); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database migrations completed")

	return appCfg, database, nil
}

// Run starts the server with the given configuration and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Version != "" {
		handlers.Version = cfg.Version
	}

	appCfg, database, err := Setup()
	if err != nil {
		return err
	}
	if cfg.Port != 0 {
		appCfg.Server.Port = cfg.Port
	}
	slog.Info("Starting portal server", "version", handlers.Version, "mode", appCfg.Server.Mode)

	instanceID, err := db.InstanceID(database)
	if err != nil {
		return fmt.Errorf("failed to initialize instance ID: %w", err)
	}
	slog.Info("Instance ID initialized", "instance_id", instanceID)

	if err := db.CreateDefaultAdmin(database); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	app, err := NewApp(ctx, appCfg, database)
	if err != nil {
		return err
	}
	defer app.Close()

	router := api.NewRouter(api.Deps{
		Config:       appCfg,
		DB:           database,
		Auth:         app.Auth,
		OIDC:         app.OIDC,
		Evaluator:    app.Evaluator,
		Profiles:     app.Profiles,
		RoleRequests: app.RoleRequests,
		Permissions:  app.Permissions,
		Registration: app.Registration,
		Notifier:     app.Notifier,
		Broker:       app.Broker,
		Metrics:      app.Metrics,
		InstanceID:   instanceID,
	})

	addr := fmt.Sprintf(":%d", appCfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("Server stopped")
		return nil
	})

	g.Go(func() error {
		if err := app.Worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("maintenance worker failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := app.Relay(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notification relay failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Portal exited")
	return nil
}

// RunWithSignalHandling starts the server and handles OS signals for graceful shutdown.
func RunWithSignalHandling(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()

	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig)
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}
