// Package middleware provides the gateway's request guards: bearer token
// authentication, permission enforcement, and rate limiting (in-process
// and Redis-backed).
//
// Authentication failures are deliberately uniform. A missing header, a
// malformed header, a bad signature and an expired token all produce the
// same 401 shape so the endpoint cannot be used as an oracle.
package middleware
