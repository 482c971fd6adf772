package auth

import "errors"

// Sentinel errors for token handling.
var (
	ErrSecretRequired = errors.New("api token secret is not configured")
	ErrTokenInvalid   = errors.New("invalid token")
)
