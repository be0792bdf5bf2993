// Package session stores short-lived server-side session records. Two
// backends are provided: Redis for multi-instance deployments and an
// in-process expirable cache for single-node and test use.
package session
