package rbac

import (
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelConf string

var memberPermissions = []Permission{
	CreateProject,
	EditOwnProject,
	DeleteOwnProject,
	UploadResource,
	CreateForumPost,
	ViewMemberDirectory,
}

var alumniPermissions = []Permission{
	MentorMembers,
	CreateEvent,
}

var moderatorPermissions = []Permission{
	EditAnyProject,
	FeatureProject,
	EditEvent,
	DeleteEvent,
	ManageEventRegistrations,
	ApproveResource,
	DeleteResource,
	ModerateForum,
	PinForumPost,
	ViewAdminDashboard,
}

// PermissionsFor returns the static permission set of a role. Every role's
// set contains the set of the role below it; admin holds the full registry.
// Unknown roles hold nothing.
func PermissionsFor(r Role) []Permission {
	switch r {
	case RoleMember:
		return append([]Permission(nil), memberPermissions...)
	case RoleAlumni:
		return append(PermissionsFor(RoleMember), alumniPermissions...)
	case RoleModerator:
		return append(PermissionsFor(RoleAlumni), moderatorPermissions...)
	case RoleAdmin:
		return AllPermissions()
	}
	return nil
}

// Policy answers role -> permission questions through a casbin enforcer
// seeded from PermissionsFor. When backed by a database the seeded rules are
// also written to casbin_rule so the effective policy can be inspected.
type Policy struct {
	enforcer  *casbin.SyncedEnforcer
	persisted bool
}

// NewPolicy builds the enforcer. db may be nil for a purely in-memory policy.
func NewPolicy(db *gorm.DB) (*Policy, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	var e *casbin.SyncedEnforcer
	if db != nil {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
		}
		e, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
		}
	} else {
		e, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
		}
	}

	p := &Policy{enforcer: e, persisted: db != nil}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// Sync replaces whatever policy the enforcer holds with the static role table.
func (p *Policy) Sync() error {
	p.enforcer.EnableAutoSave(false)
	p.enforcer.ClearPolicy()

	rules := Rules()
	if _, err := p.enforcer.AddPolicies(rules); err != nil {
		return fmt.Errorf("failed to load role policy: %w", err)
	}

	if p.persisted {
		if err := p.enforcer.SavePolicy(); err != nil {
			return fmt.Errorf("failed to save role policy: %w", err)
		}
	}

	slog.Info("RBAC policy synchronized", "rules", len(rules), "persisted", p.persisted)
	return nil
}

// Allows reports whether role r holds permission perm.
func (p *Policy) Allows(r Role, perm Permission) (bool, error) {
	return p.enforcer.Enforce(string(r), string(perm))
}

// Rules returns the static table as casbin policy rows (role, permission).
func Rules() [][]string {
	var rules [][]string
	for _, r := range Roles() {
		for _, perm := range PermissionsFor(r) {
			rules = append(rules, []string{string(r), string(perm)})
		}
	}
	return rules
}
