// Package rbac implements the role/permission graph of the gateway.
//
// A permission is an (action, subject) pair, unique together, rendered as
// the string "action:subject". Roles hold sets of permissions; users hold
// sets of roles. The graph is flattened into a plain string set at token
// issuance time, so request-time authorization never traverses it.
//
// The three system roles (super_admin, admin, user) are installed by Seed
// and are protected: they cannot be renamed or deleted.
package rbac
