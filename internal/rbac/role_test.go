package rbac

import "testing"

func TestHasMinimumRole(t *testing.T) {
	for _, r := range Roles() {
		if !HasMinimumRole(r, r) {
			t.Errorf("HasMinimumRole(%s, %s) should be true", r, r)
		}
	}

	tests := []struct {
		user, required Role
		want           bool
	}{
		{RoleMember, RoleAdmin, false},
		{RoleAdmin, RoleMember, true},
		{RoleAlumni, RoleMember, true},
		{RoleAlumni, RoleModerator, false},
		{RoleModerator, RoleAlumni, true},
		{"ghost", RoleMember, false},
		{RoleAdmin, "ghost", false},
		{"ghost", "ghost", false},
	}
	for _, tt := range tests {
		if got := HasMinimumRole(tt.user, tt.required); got != tt.want {
			t.Errorf("HasMinimumRole(%q, %q) = %v, want %v", tt.user, tt.required, got, tt.want)
		}
	}
}

func TestRoleLevels(t *testing.T) {
	for i, r := range Roles() {
		if r.Level() != i {
			t.Errorf("%s: expected level %d, got %d", r, i, r.Level())
		}
	}
	if Role("ghost").Level() != -1 {
		t.Error("unknown role should have level -1")
	}
	if _, ok := ParseRole("moderator"); !ok {
		t.Error("moderator should parse")
	}
	if _, ok := ParseRole("Moderator"); ok {
		t.Error("role names are case-sensitive")
	}
}

func TestParseRequestableRole(t *testing.T) {
	for _, name := range []string{"alumni", "moderator"} {
		r, ok := ParseRequestableRole(name)
		if !ok || string(r.Role()) != name {
			t.Errorf("%s should be requestable", name)
		}
	}
	for _, name := range []string{"admin", "member", ""} {
		if _, ok := ParseRequestableRole(name); ok {
			t.Errorf("%q must not be requestable", name)
		}
	}
}
