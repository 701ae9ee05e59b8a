package domain

import (
	"fmt"
	"strings"
)

// Permission is a named capability in "resource:action" form. The engine
// treats the string as opaque; callers supply the permissions that guard
// their own resources.
type Permission string

// NewPermission builds a permission identifier from its parts.
func NewPermission(resource, action string) Permission {
	return Permission(fmt.Sprintf("%s:%s", resource, action))
}

// Resource returns the resource segment of the identifier.
func (p Permission) Resource() string {
	if idx := strings.IndexByte(string(p), ':'); idx > 0 {
		return string(p)[:idx]
	}
	return string(p)
}

// Catalog of permissions guarding this subsystem's own surface plus the
// platform resources the surrounding application registers.
const (
	PermissionUserCreate    Permission = "user:create"
	PermissionUserRead      Permission = "user:read"
	PermissionUserDelete    Permission = "user:delete"
	PermissionUserLock      Permission = "user:lock"
	PermissionUserUnlock    Permission = "user:unlock"
	PermissionRoleChange    Permission = "role:change"
	PermissionPasswordReset Permission = "password:reset"
	PermissionSessionList   Permission = "session:list"
	PermissionSessionRevoke Permission = "session:revoke"
	PermissionAuditRead     Permission = "audit:read"

	PermissionSubmissionCreate Permission = "submission:create"
	PermissionSubmissionRead   Permission = "submission:read"
	PermissionSubmissionUpdate Permission = "submission:update"
	PermissionSubmissionDelete Permission = "submission:delete"
	PermissionDocumentCreate   Permission = "document:create"
	PermissionDocumentRead     Permission = "document:read"
	PermissionDocumentUpdate   Permission = "document:update"
	PermissionReportGenerate   Permission = "report:generate"
)

// rolePermissions is the static role/permission table. Each role carries an
// explicit set; the admin set happens to be a strict superset of the others,
// but nothing may rely on that shape. Membership is always answered by
// consulting the table.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermissionSubmissionRead,
		PermissionDocumentRead,
	},
	RoleAnalyst: {
		PermissionSubmissionCreate,
		PermissionSubmissionRead,
		PermissionSubmissionUpdate,
		PermissionDocumentCreate,
		PermissionDocumentRead,
		PermissionDocumentUpdate,
		PermissionReportGenerate,
	},
	RoleAdmin: {
		PermissionUserCreate,
		PermissionUserRead,
		PermissionUserDelete,
		PermissionUserLock,
		PermissionUserUnlock,
		PermissionRoleChange,
		PermissionPasswordReset,
		PermissionSessionList,
		PermissionSessionRevoke,
		PermissionAuditRead,
		PermissionSubmissionCreate,
		PermissionSubmissionRead,
		PermissionSubmissionUpdate,
		PermissionSubmissionDelete,
		PermissionDocumentCreate,
		PermissionDocumentRead,
		PermissionDocumentUpdate,
		PermissionReportGenerate,
	},
}

// PermissionsForRole returns a copy of the role's permission set. Unknown
// roles resolve to the empty set.
func PermissionsForRole(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// RoleHasPermission answers membership against the static table.
func RoleHasPermission(role Role, permission Permission) bool {
	for _, candidate := range rolePermissions[role] {
		if candidate == permission {
			return true
		}
	}
	return false
}
