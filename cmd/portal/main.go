package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/voltclub/portal/docs" // Load swagger docs
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Portal - membership and roles for the electronics club",
	Long:  `Portal runs the club's member API and provides operator commands for accounts, roles and permissions.`,
	Example: `  # Start the server
  portal serve

  # Bootstrap an administrator and grant a temporary permission
  portal admin create chair@volt.club
  portal grant ada@volt.club create_event --expires 72h`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "admin", Title: "Admin Commands:"},
	)

	serveCmd.GroupID = "server"
	migrateCmd.GroupID = "server"
	purgeCmd.GroupID = "server"

	adminCmd.GroupID = "admin"
	grantCmd.GroupID = "admin"
	revokeCmd.GroupID = "admin"
	policyCmd.GroupID = "admin"

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
