package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voltclub/portal/internal/db"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long:  `Apply schema migrations and write the role policy to the database, then exit.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := server.Setup()
		if err != nil {
			return err
		}
		version, err := db.GetSetting(database, models.SettingSchemaVersion)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database is at schema version %s\n", version)
		return nil
	},
}
