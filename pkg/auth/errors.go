package auth

import "errors"

var (
	// ErrInvalidToken indicates a malformed token or a signature mismatch
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a token whose exp has elapsed
	ErrTokenExpired = errors.New("token expired")

	// ErrServiceMismatch indicates a token minted for a different service
	ErrServiceMismatch = errors.New("token not valid for this service")

	// ErrInvalidCredentials indicates a failed password check
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshTokenNotFound indicates an unknown or already-rotated
	// refresh token
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrRefreshTokenExpired indicates a refresh token past its expiry
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrInvalidAPIKey indicates a malformed, unknown or revoked API key
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrAPIKeyExpired indicates an API key past its expiry
	ErrAPIKeyExpired = errors.New("API key expired")

	// ErrAPIKeyUserDisabled indicates a valid key whose owning account is
	// deactivated or blocked
	ErrAPIKeyUserDisabled = errors.New("API key user disabled")

	// ErrAPIKeyNotFound indicates an unknown key id on a management call
	ErrAPIKeyNotFound = errors.New("API key not found")
)
