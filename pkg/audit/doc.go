// Package audit records security-relevant events: authentication
// attempts, permission denials, admin actions, and webhook configuration
// changes. Audit rows are append-only; user deactivation and blocking
// are soft states elsewhere precisely so this trail stays intact.
package audit
