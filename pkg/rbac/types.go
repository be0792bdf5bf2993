package rbac

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrRoleNotFound indicates a missing role
	ErrRoleNotFound = errors.New("role not found")

	// ErrDuplicateRole indicates a role name collision
	ErrDuplicateRole = errors.New("role name already exists")

	// ErrProtectedRole indicates an attempt to mutate or delete a
	// non-editable system role
	ErrProtectedRole = errors.New("system role cannot be modified")
)

// Permission represents a specific permission (action on a subject)
type Permission struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`
}

// String returns the canonical "action:subject" form
func (p Permission) String() string {
	return p.Action + ":" + p.Subject
}

// Role represents a named set of permissions
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	IsEditable  bool         `json:"is_editable"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// System role names. These are seeded at startup and protected from
// mutation and deletion.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// IsProtectedRoleName reports whether the name belongs to a system role
func IsProtectedRoleName(name string) bool {
	switch name {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Flatten converts a set of roles into the union of the permission strings
// they grant, sorted and deduplicated. This runs once at token issuance;
// request-time checks are set membership over the result.
func Flatten(roles []Role) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, role := range roles {
		for _, perm := range role.Permissions {
			key := perm.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// RoleNames extracts the role names in input order
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}
