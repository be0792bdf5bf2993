// Package api wires the HTTP surface of the gateway: authentication
// endpoints, self-service API key management, admin management of
// users, roles, webhooks and the service registry, the audit trail,
// and the proxy catch-all that forwards authenticated traffic to
// registered upstream services.
//
// Handlers are grouped per concern (AuthHandlers, UserHandlers, ...) and
// each group registers its own routes on the shared mux router. Admin
// routes sit behind the auth middleware plus a permission guard; the
// permission strings match the seeded taxonomy in pkg/rbac.
package api
