package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/voltclub/portal/internal/metrics"
)

type fakeRoles struct {
	roles map[uuid.UUID]Role
	err   error
}

func (f *fakeRoles) RoleOf(_ context.Context, userID uuid.UUID) (Role, error) {
	if f.err != nil {
		return "", f.err
	}
	r, ok := f.roles[userID]
	if !ok {
		return "", errors.New("no profile")
	}
	return r, nil
}

type fakeGrant struct {
	perm      Permission
	expiresAt *time.Time
}

type fakeGrants struct {
	grants map[uuid.UUID][]fakeGrant
	err    error
}

func (f *fakeGrants) HasActiveGrant(_ context.Context, userID uuid.UUID, p Permission, now time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, g := range f.grants[userID] {
		if g.perm == p && (g.expiresAt == nil || g.expiresAt.After(now)) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGrants) ActiveGrants(_ context.Context, userID uuid.UUID, now time.Time) ([]Permission, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Permission
	for _, g := range f.grants[userID] {
		if g.expiresAt == nil || g.expiresAt.After(now) {
			out = append(out, g.perm)
		}
	}
	return out, nil
}

func newTestEvaluator(t *testing.T, roles *fakeRoles, grants GrantSource, opts ...EvaluatorOption) *Evaluator {
	t.Helper()
	policy, err := NewPolicy(nil)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return NewEvaluator(policy, roles, grants, opts...)
}

func TestHasPermission_Roles(t *testing.T) {
	member, admin := uuid.New(), uuid.New()
	roles := &fakeRoles{roles: map[uuid.UUID]Role{member: RoleMember, admin: RoleAdmin}}
	e := newTestEvaluator(t, roles, &fakeGrants{})
	ctx := context.Background()

	if !e.HasPermission(ctx, CreateProject, member) {
		t.Error("member should create projects")
	}
	if e.HasPermission(ctx, EditUserRoles, member) {
		t.Error("member must not edit roles")
	}
	for _, p := range AllPermissions() {
		if !e.HasPermission(ctx, p, admin) {
			t.Errorf("admin should hold %s", p)
		}
	}
	if e.HasPermission(ctx, "launch_rockets", admin) {
		t.Error("unknown permission must be denied even for admin")
	}
	if e.HasPermissionNamed(ctx, "launch_rockets", admin) || !e.HasPermissionNamed(ctx, "manage_users", admin) {
		t.Error("HasPermissionNamed should parse names")
	}
	if e.HasPermission(ctx, CreateProject, uuid.New()) {
		t.Error("user without profile must be denied")
	}
}

func TestHasPermission_GrantExpiry(t *testing.T) {
	member := uuid.New()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)

	roles := &fakeRoles{roles: map[uuid.UUID]Role{member: RoleMember}}
	grants := &fakeGrants{grants: map[uuid.UUID][]fakeGrant{member: {{perm: EditUserRoles, expiresAt: &expires}}}}
	e := newTestEvaluator(t, roles, grants, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if !e.HasPermission(ctx, EditUserRoles, member) {
		t.Fatal("unexpired grant should allow")
	}
	now = expires
	if e.HasPermission(ctx, EditUserRoles, member) {
		t.Fatal("grant expiring now must deny")
	}
}

func TestHasPermission_FailsClosed(t *testing.T) {
	member := uuid.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ctx := context.Background()

	broken := newTestEvaluator(t, &fakeRoles{err: errors.New("db down")}, &fakeGrants{}, WithMetrics(m))
	if broken.HasPermission(ctx, CreateProject, member) {
		t.Error("role lookup failure must deny")
	}
	if err := broken.Require(ctx, CreateProject, member); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}

	roles := &fakeRoles{roles: map[uuid.UUID]Role{member: RoleMember}}
	grantErr := newTestEvaluator(t, roles, &fakeGrants{err: errors.New("db down")}, WithMetrics(m))
	if grantErr.HasPermission(ctx, EditUserRoles, member) {
		t.Error("grant lookup failure must deny")
	}
	// Role permissions do not need the grant table.
	if !grantErr.HasPermission(ctx, CreateProject, member) {
		t.Error("role permission should not depend on grants")
	}

	if got := testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("create_project", "error")); got != 2 {
		t.Errorf("expected 2 error outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("edit_user_roles", "error")); got != 1 {
		t.Errorf("expected 1 grant error outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("create_project", "role")); got != 1 {
		t.Errorf("expected 1 role outcome, got %v", got)
	}
}

func TestHasPermission_NoGrantSource(t *testing.T) {
	member := uuid.New()
	e := newTestEvaluator(t, &fakeRoles{roles: map[uuid.UUID]Role{member: RoleMember}}, nil)
	if e.HasPermission(context.Background(), EditUserRoles, member) {
		t.Error("without grants only role permissions apply")
	}
}

func TestEffectivePermissions(t *testing.T) {
	member := uuid.New()
	roles := &fakeRoles{roles: map[uuid.UUID]Role{member: RoleMember}}
	grants := &fakeGrants{grants: map[uuid.UUID][]fakeGrant{member: {
		{perm: CreateProject}, // already held through the role
		{perm: MentorMembers},
		{perm: "retired_permission"},
	}}}
	e := newTestEvaluator(t, roles, grants)

	perms, err := e.EffectivePermissions(context.Background(), member)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if len(perms) != len(PermissionsFor(RoleMember))+1 {
		t.Fatalf("expected role set plus mentor_members, got %v", perms)
	}
	if perms[len(perms)-1] != MentorMembers {
		t.Errorf("expected mentor_members last, got %v", perms)
	}
}
