// Package auth implements the token service of the gateway: JWT access
// tokens with embedded role and permission claims, opaque rotating refresh
// tokens, bcrypt password hashing, and the blind index used for
// privacy-preserving email lookup.
//
// Access tokens are self-contained: the permission set is flattened into
// the token at issuance so that request-time authorization never touches
// the database. The tradeoff is staleness; a role change only becomes
// visible after the token is refreshed or reissued.
//
// Every token is minted for exactly one downstream service. Verification
// is scoped: a token minted for service A is rejected by a verifier
// configured for service B even when the signature is valid.
package auth
