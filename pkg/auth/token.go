package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the access token lifetime when none is configured
const DefaultAccessTokenTTL = 24 * time.Hour

// Claims is the decoded payload of a gateway access token. It carries
// everything the permission middleware needs so that authorization is a
// pure set-membership check.
type Claims struct {
	UserID      string   `json:"id"`
	Service     string   `json:"service"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the claim set contains the permission
// string (form "action:subject")
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionSet returns the permissions as a set for repeated lookups
func (c *Claims) PermissionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		set[p] = struct{}{}
	}
	return set
}

// TokenService issues and verifies signed access tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewTokenService creates a token service with the given HMAC secret and
// access token lifetime
func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &TokenService{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the configured access token lifetime
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs an access token for the given user, scoped to exactly one
// downstream service. Roles and permissions are embedded as-is; callers
// flatten the role graph before issuance.
func (ts *TokenService) Issue(userID, service string, roles, permissions []string) (string, error) {
	now := ts.now()
	claims := Claims{
		UserID:      userID,
		Service:     service,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.secret)
}

// Verify checks signature and expiry and returns the decoded claims.
// When service is non-empty the token's service claim must match; this is
// the cross-service isolation boundary of the SSO hub.
func (ts *TokenService) Verify(tokenString, service string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return ts.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return ts.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if service != "" && claims.Service != service {
		return nil, ErrServiceMismatch
	}

	return claims, nil
}
