// Package auth signs and verifies the bearer tokens that guard the bridge
// control endpoints.
//
// Tokens are HS256 JWTs keyed by security.api_token_secret. There are no
// users or roles: a valid signature grants full control, and the subject
// claim only labels the caller in logs.
package auth
