package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voltclub/portal/internal/rbac"
	"gopkg.in/yaml.v3"
)

func TestWritePolicy(t *testing.T) {
	var buf bytes.Buffer
	if err := writePolicy(&buf, []rbac.Role{rbac.RoleMember, rbac.RoleAdmin}); err != nil {
		t.Fatalf("writePolicy() error = %v", err)
	}

	var doc policyDoc
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if len(doc.Roles) != 2 {
		t.Fatalf("got %d roles, want 2", len(doc.Roles))
	}
	if doc.Roles[1].Name != "admin" || len(doc.Roles[1].Permissions) != len(rbac.AllPermissions()) {
		t.Errorf("admin entry = %+v", doc.Roles[1])
	}
	if doc.Roles[0].Level != 0 {
		t.Errorf("member level = %d, want 0", doc.Roles[0].Level)
	}
}

func TestParsePermissionArg(t *testing.T) {
	if _, err := parsePermissionArg("create_event"); err != nil {
		t.Errorf("create_event: %v", err)
	}
	if _, err := parsePermissionArg("launch_rockets"); err == nil {
		t.Error("expected error for unknown permission")
	}
}

func TestCLIGrantRevokeRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORTAL_DATABASE_DSN", filepath.Join(t.TempDir(), "portal.db"))
	t.Setenv("PORTAL_LOG_LEVEL", "error")
	t.Setenv("PORTAL_ADMIN_PASSWORD", "oscilloscope")

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		return out.String(), err
	}

	if out, err := run("admin", "create", "Chair@Volt.Club"); err != nil {
		t.Fatalf("admin create: %v\n%s", err, out)
	}

	out, err := run("grant", "chair@volt.club", "create_event", "--expires", "1h")
	if err != nil {
		t.Fatalf("grant: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Granted create_event to chair") {
		t.Errorf("grant output = %q", out)
	}
	grantExpires = 0

	out, err = run("revoke", "chair@volt.club", "create_event")
	if err != nil {
		t.Fatalf("revoke: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Revoked create_event") {
		t.Errorf("revoke output = %q", out)
	}

	if _, err := run("grant", "nobody@volt.club", "create_event"); err == nil {
		t.Error("expected error for unknown member")
	}
}
