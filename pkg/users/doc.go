// Package users persists user accounts. The identity key is a blind
// index of the normalized email, never the plaintext, so equality lookup
// works without the email ever reaching storage or logs as a key.
package users
