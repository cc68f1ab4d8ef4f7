package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/voltclub/portal/internal/rbac"
	"gopkg.in/yaml.v3"
)

var policyRole string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the role permission table",
	Long: `Print the static role to permission table as YAML.

Examples:
  portal policy
  portal policy --role moderator`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roles := rbac.Roles()
		if policyRole != "" {
			r, ok := rbac.ParseRole(policyRole)
			if !ok {
				return fmt.Errorf("unknown role %q", policyRole)
			}
			roles = []rbac.Role{r}
		}
		return writePolicy(cmd.OutOrStdout(), roles)
	},
}

func init() {
	policyCmd.Flags().StringVar(&policyRole, "role", "", "Only print this role")
}

type policyDoc struct {
	Roles []policyRoleDoc `yaml:"roles"`
}

type policyRoleDoc struct {
	Name        string   `yaml:"name"`
	Level       int      `yaml:"level"`
	Permissions []string `yaml:"permissions"`
}

func writePolicy(w io.Writer, roles []rbac.Role) error {
	var doc policyDoc
	for _, r := range roles {
		rd := policyRoleDoc{Name: r.String(), Level: r.Level()}
		for _, p := range rbac.PermissionsFor(r) {
			rd.Permissions = append(rd.Permissions, p.String())
		}
		doc.Roles = append(doc.Roles, rd)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}
	return enc.Close()
}
