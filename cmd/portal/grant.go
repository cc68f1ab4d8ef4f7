package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/voltclub/portal/internal/rbac"
)

var grantExpires time.Duration

var grantCmd = &cobra.Command{
	Use:   "grant <user-id|email> <permission>",
	Short: "Grant a permission to a member",
	Long: `Grant a single permission on top of the member's role.

Examples:
  portal grant ada@volt.club create_event
  portal grant ada@volt.club manage_event_registrations --expires 72h`,
	Args: cobra.ExactArgs(2),
	RunE: runGrant,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <user-id|email> <permission>",
	Short: "Revoke a member's permission grant",
	Long:  `Remove a grant made with "portal grant". Permissions held through the role are unaffected.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runRevoke,
}

func init() {
	grantCmd.Flags().DurationVar(&grantExpires, "expires", 0, "Expire the grant after this duration (default: never)")
}

func parsePermissionArg(name string) (rbac.Permission, error) {
	p, ok := rbac.ParsePermission(name)
	if !ok {
		return "", fmt.Errorf("unknown permission %q (see \"portal policy\")", name)
	}
	return p, nil
}

func runGrant(cmd *cobra.Command, args []string) error {
	p, err := parsePermissionArg(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	profile, err := resolveProfile(ctx, app.DB, args[0])
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if grantExpires > 0 {
		t := time.Now().UTC().Add(grantExpires)
		expiresAt = &t
	}

	grant, err := app.Permissions.SystemGrant(ctx, uuid.Nil, profile.ID, p, expiresAt)
	if err != nil {
		return err
	}

	if grant.ExpiresAt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s until %s\n", p, profile.Username, grant.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s\n", p, profile.Username)
	}
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	p, err := parsePermissionArg(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	profile, err := resolveProfile(ctx, app.DB, args[0])
	if err != nil {
		return err
	}
	if err := app.Permissions.SystemRevoke(ctx, uuid.Nil, profile.ID, p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s from %s\n", p, profile.Username)
	return nil
}
