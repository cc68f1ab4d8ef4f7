package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/rbac"
)

func TestPermission_GrantLifecycle(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	member := createMember(t, env, "m", rbac.RoleMember)

	if env.evaluator.HasPermission(ctx, rbac.EditUserRoles, member) {
		t.Fatal("member must not hold edit_user_roles")
	}

	expires := env.clock.Add(time.Hour)
	grant, err := env.permissions.Grant(ctx, admin, member, rbac.EditUserRoles, &expires)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if grant.GrantedBy == nil || *grant.GrantedBy != admin {
		t.Errorf("expected granted_by to be recorded, got %v", grant.GrantedBy)
	}
	if !env.evaluator.HasPermission(ctx, rbac.EditUserRoles, member) {
		t.Fatal("grant with future expiry should allow")
	}

	env.clock = env.clock.Add(2 * time.Hour)
	if env.evaluator.HasPermission(ctx, rbac.EditUserRoles, member) {
		t.Fatal("expired grant must deny")
	}

	if len(auditActions(t, env, audit.ActionGrantPermission)) != 1 {
		t.Error("expected a grant_permission audit entry")
	}
}

func TestPermission_GrantReplacesExpiry(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	member := createMember(t, env, "m", rbac.RoleMember)

	soon := env.clock.Add(time.Minute)
	if _, err := env.permissions.Grant(ctx, admin, member, rbac.ViewAuditLogs, &soon); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if _, err := env.permissions.Grant(ctx, admin, member, rbac.ViewAuditLogs, nil); err != nil {
		t.Fatalf("re-Grant: %v", err)
	}

	grants, err := env.permissions.ListGrants(ctx, admin, member)
	if err != nil {
		t.Fatalf("ListGrants: %v", err)
	}
	if len(grants) != 1 || grants[0].ExpiresAt != nil {
		t.Fatalf("expected one permanent grant, got %+v", grants)
	}

	env.clock = env.clock.Add(24 * time.Hour)
	if !env.evaluator.HasPermission(ctx, rbac.ViewAuditLogs, member) {
		t.Error("permanent grant should not expire")
	}
}

func TestPermission_Revoke(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	member := createMember(t, env, "m", rbac.RoleMember)

	if _, err := env.permissions.Grant(ctx, admin, member, rbac.SendAnnouncements, nil); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := env.permissions.Revoke(ctx, admin, member, rbac.SendAnnouncements); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if env.evaluator.HasPermission(ctx, rbac.SendAnnouncements, member) {
		t.Error("revoked grant must deny")
	}
	if err := env.permissions.Revoke(ctx, admin, member, rbac.SendAnnouncements); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second revoke, got %v", err)
	}
}

func TestPermission_Validation(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	moderator := createMember(t, env, "mod", rbac.RoleModerator)
	member := createMember(t, env, "m", rbac.RoleMember)

	if _, err := env.permissions.Grant(ctx, moderator, member, rbac.ManageUsers, nil); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("moderator must not grant, got %v", err)
	}

	var validation *ValidationError
	if _, err := env.permissions.Grant(ctx, admin, member, "fly", nil); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for unknown permission, got %v", err)
	}
	past := env.clock.Add(-time.Minute)
	if _, err := env.permissions.Grant(ctx, admin, member, rbac.ManageUsers, &past); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for past expiry, got %v", err)
	}
	if _, err := env.permissions.Grant(ctx, admin, uuid.New(), rbac.ManageUsers, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestPermission_AdminHoldsEverything(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)

	for _, p := range rbac.AllPermissions() {
		if !env.evaluator.HasPermission(ctx, p, admin) {
			t.Errorf("admin should hold %s", p)
		}
	}

	perms, err := env.permissions.Effective(ctx, admin)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if len(perms) != len(rbac.AllPermissions()) {
		t.Errorf("expected %d permissions, got %d", len(rbac.AllPermissions()), len(perms))
	}
}

func TestPermission_EffectiveIncludesGrants(t *testing.T) {
	env := testSetup(t)
	member := createMember(t, env, "m", rbac.RoleMember)

	if _, err := env.permissions.SystemGrant(ctx, uuid.Nil, member, rbac.PinForumPost, nil); err != nil {
		t.Fatalf("SystemGrant: %v", err)
	}
	perms, err := env.permissions.Effective(ctx, member)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if len(perms) != len(rbac.PermissionsFor(rbac.RoleMember))+1 {
		t.Errorf("expected member set plus one grant, got %v", perms)
	}
	if perms[len(perms)-1] != rbac.PinForumPost {
		t.Errorf("expected grant listed after role permissions, got %v", perms)
	}
}
