package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnauthorized       = errors.New("auth: unauthorized")

	// Password reset and email verification outcomes. Stable codes: the HTTP
	// layer maps each to its own message, and a used token must keep failing
	// with ErrTokenAlreadyUsed no matter how often it is replayed.
	ErrTokenNotFound        = errors.New("auth: token not found")
	ErrTokenAlreadyUsed     = errors.New("auth: token already used")
	ErrTokenInvalid         = errors.New("auth: invalid token")
	ErrTokenExpired         = errors.New("auth: token expired")
	ErrAccountNotFound      = errors.New("auth: account not found")
	ErrEmailAlreadyVerified = errors.New("auth: email already verified")
	ErrResendThrottled      = errors.New("auth: resend throttled")
)
