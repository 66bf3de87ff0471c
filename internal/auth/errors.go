package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for any username, password or TOTP mismatch.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTOTPRequired is returned when a TOTP secret is configured and no code was supplied.
	ErrTOTPRequired = errors.New("auth: totp code required")

	// ErrOperatorNotConfigured is returned when no password hash is configured.
	ErrOperatorNotConfigured = errors.New("auth: operator not configured")

	// ErrTokenInvalid is returned for malformed, expired or wrongly signed tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned when a stored hash is not an Argon2id PHC string.
	ErrInvalidHash = errors.New("auth: invalid password hash")
)
