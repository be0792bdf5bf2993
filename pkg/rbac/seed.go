package rbac

import (
	"context"
	"errors"
	"fmt"
)

// seedPermission is a baseline (action, subject) pair installed at startup
type seedPermission struct {
	Action      string
	Subject     string
	Description string
}

// defaultPermissions is the baseline permission taxonomy of the hub
var defaultPermissions = []seedPermission{
	{Action: "read", Subject: "users", Description: "View the user list"},
	{Action: "create", Subject: "users", Description: "Create new users"},
	{Action: "update", Subject: "users", Description: "Modify users"},
	{Action: "delete", Subject: "users", Description: "Delete users"},
	{Action: "block", Subject: "users", Description: "Block or unblock users"},

	{Action: "read", Subject: "roles", Description: "View the role list"},
	{Action: "create", Subject: "roles", Description: "Create new roles"},
	{Action: "update", Subject: "roles", Description: "Modify roles"},
	{Action: "delete", Subject: "roles", Description: "Delete roles"},

	{Action: "read", Subject: "permissions", Description: "View the permission list"},
	{Action: "assign", Subject: "permissions", Description: "Assign permissions to roles"},

	{Action: "read", Subject: "services", Description: "View the service registry"},
	{Action: "create", Subject: "services", Description: "Register new services"},
	{Action: "update", Subject: "services", Description: "Modify registered services"},
	{Action: "delete", Subject: "services", Description: "Remove registered services"},
	{Action: "access", Subject: "services", Description: "Access platform services"},

	{Action: "read", Subject: "webhooks", Description: "View webhook registrations"},
	{Action: "create", Subject: "webhooks", Description: "Register webhooks"},
	{Action: "update", Subject: "webhooks", Description: "Modify webhooks"},
	{Action: "delete", Subject: "webhooks", Description: "Remove webhooks"},

	{Action: "read", Subject: "logs", Description: "View system logs"},
	{Action: "read", Subject: "audit", Description: "View the audit trail"},
	{Action: "read", Subject: "stats", Description: "View statistics"},
}

// adminPermissions is the subset granted to the admin system role;
// super_admin gets everything, user gets service access only
var adminPermissions = map[string]struct{}{
	"read:users": {}, "create:users": {}, "update:users": {}, "delete:users": {}, "block:users": {},
	"read:services": {}, "create:services": {}, "update:services": {}, "delete:services": {},
	"read:webhooks": {}, "create:webhooks": {}, "update:webhooks": {}, "delete:webhooks": {},
	"read:stats": {}, "read:logs": {}, "read:audit": {},
	"read:roles": {}, "read:permissions": {},
	"access:services": {},
}

// Seed installs the baseline permissions and the three protected system
// roles. It is idempotent: permissions upsert on (action, subject) and
// roles that already exist are left untouched.
func (s *Store) Seed(ctx context.Context) error {
	installed := make([]Permission, 0, len(defaultPermissions))
	for _, sp := range defaultPermissions {
		perm, err := s.UpsertPermission(ctx, sp.Action, sp.Subject, sp.Description)
		if err != nil {
			return fmt.Errorf("failed to seed permission %s:%s: %w", sp.Action, sp.Subject, err)
		}
		installed = append(installed, *perm)
	}

	allIDs := make([]string, 0, len(installed))
	adminIDs := make([]string, 0, len(adminPermissions))
	var userIDs []string
	for _, perm := range installed {
		allIDs = append(allIDs, perm.ID)
		if _, ok := adminPermissions[perm.String()]; ok {
			adminIDs = append(adminIDs, perm.ID)
		}
		if perm.String() == "access:services" {
			userIDs = append(userIDs, perm.ID)
		}
	}

	systemRoles := []struct {
		name        string
		description string
		permIDs     []string
	}{
		{RoleSuperAdmin, "Super administrator - full access including admin management", allIDs},
		{RoleAdmin, "Administrator - user and service management", adminIDs},
		{RoleUser, "Standard user - platform service access", userIDs},
	}

	for _, sr := range systemRoles {
		if _, err := s.CreateRole(ctx, sr.name, sr.description, false, sr.permIDs); err != nil {
			if errors.Is(err, ErrDuplicateRole) {
				continue
			}
			return fmt.Errorf("failed to seed role %s: %w", sr.name, err)
		}
	}
	return nil
}
