package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voltclub/portal/internal/db"
	"github.com/voltclub/portal/internal/server"
	"golang.org/x/term"
)

var adminName string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create or promote an administrator",
	Long: `Create a confirmed account with the admin role, or promote an existing
account to admin. The password is read from PORTAL_ADMIN_PASSWORD or
prompted for interactively. An existing account keeps its password.

Examples:
  portal admin create chair@volt.club
  portal admin create chair@volt.club --name "Ada Lovelace"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdminCreate,
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "Full name for a new profile")
	adminCmd.AddCommand(adminCreateCmd)
}

func runAdminCreate(cmd *cobra.Command, args []string) error {
	password := os.Getenv("PORTAL_ADMIN_PASSWORD")
	if password == "" {
		var err error
		password, err = readPassword(cmd)
		if err != nil {
			return err
		}
	}

	_, database, err := server.Setup()
	if err != nil {
		return err
	}

	profile, err := db.CreateAdmin(cmd.Context(), database, args[0], password, adminName)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Admin %s (%s) is ready\n", profile.Username, profile.ID)
	return nil
}

// readPassword prompts without echo on a terminal and reads a line otherwise.
func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pass), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
