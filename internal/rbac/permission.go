package rbac

// Permission names a single capability. The set of permissions is closed:
// anything not listed in the registry below is denied by the evaluator.
type Permission string

// Projects
const (
	CreateProject    Permission = "create_project"
	EditOwnProject   Permission = "edit_own_project"
	DeleteOwnProject Permission = "delete_own_project"
	EditAnyProject   Permission = "edit_any_project"
	DeleteAnyProject Permission = "delete_any_project"
	FeatureProject   Permission = "feature_project"
)

// Events
const (
	CreateEvent              Permission = "create_event"
	EditEvent                Permission = "edit_event"
	DeleteEvent              Permission = "delete_event"
	ManageEventRegistrations Permission = "manage_event_registrations"
)

// Resource library
const (
	UploadResource  Permission = "upload_resource"
	ApproveResource Permission = "approve_resource"
	DeleteResource  Permission = "delete_resource"
)

// Forum
const (
	CreateForumPost Permission = "create_forum_post"
	ModerateForum   Permission = "moderate_forum"
	PinForumPost    Permission = "pin_forum_post"
)

// Community
const (
	ViewMemberDirectory Permission = "view_member_directory"
	MentorMembers       Permission = "mentor_members"
)

// Administration
const (
	ViewAdminDashboard Permission = "view_admin_dashboard"
	ManageUsers        Permission = "manage_users"
	EditUserRoles      Permission = "edit_user_roles"
	SuspendUsers       Permission = "suspend_users"
	ManagePermissions  Permission = "manage_permissions"
	ViewAuditLogs      Permission = "view_audit_logs"
	SendAnnouncements  Permission = "send_announcements"
)

var registry = []Permission{
	CreateProject, EditOwnProject, DeleteOwnProject, EditAnyProject, DeleteAnyProject, FeatureProject,
	CreateEvent, EditEvent, DeleteEvent, ManageEventRegistrations,
	UploadResource, ApproveResource, DeleteResource,
	CreateForumPost, ModerateForum, PinForumPost,
	ViewMemberDirectory, MentorMembers,
	ViewAdminDashboard, ManageUsers, EditUserRoles, SuspendUsers, ManagePermissions, ViewAuditLogs, SendAnnouncements,
}

var registered = func() map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(registry))
	for _, p := range registry {
		set[p] = struct{}{}
	}
	return set
}()

// AllPermissions returns every registered permission in registry order.
func AllPermissions() []Permission {
	out := make([]Permission, len(registry))
	copy(out, registry)
	return out
}

// ParsePermission converts a permission name. ok is false for unknown names.
func ParsePermission(name string) (p Permission, ok bool) {
	p = Permission(name)
	return p, p.Valid()
}

// Valid reports whether p is in the registry.
func (p Permission) Valid() bool {
	_, ok := registered[p]
	return ok
}

func (p Permission) String() string { return string(p) }
