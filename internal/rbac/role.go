package rbac

// Role is a member's position in the club hierarchy.
type Role string

const (
	RoleMember    Role = "member"
	RoleAlumni    Role = "alumni"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// unsatisfiable is the level assigned to an unknown required role.
const unsatisfiable = 999

// Roles returns all roles from least to most privileged.
func Roles() []Role {
	return []Role{RoleMember, RoleAlumni, RoleModerator, RoleAdmin}
}

// ParseRole converts a role name. ok is false for unknown names.
func ParseRole(name string) (r Role, ok bool) {
	r = Role(name)
	return r, r.Valid()
}

// Valid reports whether r is one of the four roles.
func (r Role) Valid() bool {
	return r.Level() >= 0
}

// Level is the role's position in the total order, or -1 if unknown.
func (r Role) Level() int {
	switch r {
	case RoleMember:
		return 0
	case RoleAlumni:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	}
	return -1
}

func (r Role) String() string { return string(r) }

// HasMinimumRole reports whether userRole is at least as privileged as
// requiredRole. An unknown userRole never qualifies and an unknown
// requiredRole can never be met.
func HasMinimumRole(userRole, requiredRole Role) bool {
	required := requiredRole.Level()
	if required < 0 {
		required = unsatisfiable
	}
	return userRole.Level() >= required
}

// RequestableRole is a role a member may ask to be elevated to.
// Admin is deliberately not representable.
type RequestableRole Role

const (
	RequestAlumni    RequestableRole = RequestableRole(RoleAlumni)
	RequestModerator RequestableRole = RequestableRole(RoleModerator)
)

// ParseRequestableRole accepts "alumni" and "moderator" only.
func ParseRequestableRole(name string) (RequestableRole, bool) {
	switch r := RequestableRole(name); r {
	case RequestAlumni, RequestModerator:
		return r, true
	}
	return "", false
}

// Role returns the underlying role.
func (r RequestableRole) Role() Role { return Role(r) }
