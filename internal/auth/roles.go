package auth

import (
	"errors"
	"slices"
)

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer can read entries, status and diagnostics.
	RoleViewer Role = "viewer"

	// RoleOperator can also write controls and call services.
	RoleOperator Role = "operator"

	// RoleAdmin can also create, edit and delete entries.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the known roles.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermEntryRead      Permission = "entry:read"
	PermEntryOperate   Permission = "entry:operate"
	PermEntryConfigure Permission = "entry:configure"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermEntryRead},
	RoleOperator: {PermEntryRead, PermEntryOperate},
	RoleAdmin:    {PermEntryRead, PermEntryOperate, PermEntryConfigure},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions granted to role.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}

// Sentinel errors.
var (
	ErrTokenInvalid  = errors.New("auth: invalid token")
	ErrInvalidRole   = errors.New("auth: invalid role")
	ErrSecretMissing = errors.New("auth: signing secret not configured")
)
