package rbac

// Role is one of the four fixed product roles. The numeric values encode the
// strict total order used by at-least-role checks; RoleUnknown never passes
// any check.
type Role uint8

const (
	// RoleUnknown is the zero value and always denies.
	RoleUnknown Role = iota
	// RoleViewer can read but holds no mutating capabilities.
	RoleViewer
	// RoleDeveloper works on tasks assigned within a project.
	RoleDeveloper
	// RoleProjectManager administers projects, tasks, and calendars.
	RoleProjectManager
	// RoleAdmin holds every capability, including user management.
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleViewer:         "viewer",
	RoleDeveloper:      "developer",
	RoleProjectManager: "project_manager",
	RoleAdmin:          "admin",
}

var rolesByName = map[string]Role{
	"viewer":          RoleViewer,
	"developer":       RoleDeveloper,
	"project_manager": RoleProjectManager,
	"admin":           RoleAdmin,
}

// String returns the wire name of the role, or "unknown".
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the four product roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r ranks at or above min in the fixed role order.
// Either side being invalid denies.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r >= min
}

// ParseRole maps a wire name to a Role. Unrecognized names yield RoleUnknown.
func ParseRole(name string) (Role, bool) {
	role, ok := rolesByName[name]
	if !ok {
		return RoleUnknown, false
	}
	return role, true
}

// Roles returns all valid roles in ascending order.
func Roles() []Role {
	return []Role{RoleViewer, RoleDeveloper, RoleProjectManager, RoleAdmin}
}
