package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/voltclub/portal/internal/server"
)

var servePort int

// @title Volt Club Portal API
// @version 1.0
// @description Membership, role and notification API for the electronics club portal
// @host localhost:8470
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal server",
	Long: `Start the portal API together with its maintenance scheduler.

Examples:
  portal serve                  # Use config.yaml / environment
  portal serve --port 8080      # Override port

Environment variables:
  PORTAL_SERVER_PORT          Server port (default: 8470)
  PORTAL_DATABASE_DRIVER      Database driver: sqlite, postgres
  PORTAL_DATABASE_DSN         Database connection string
  PORTAL_AUTH_JWT_SECRET      JWT signing secret
  PORTAL_NOTIFY_BACKEND       Notification fan-out: memory, valkey
  ADMIN_EMAIL                 Bootstrap admin email
  ADMIN_PASSWORD              Bootstrap admin password`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := server.Config{
		Port:    servePort,
		Version: Version,
	}

	if err := server.RunWithSignalHandling(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
