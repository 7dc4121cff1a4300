package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the email or the password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInactiveAccount    = errors.New("account is inactive")
	// ErrTooManyAttempts is returned while the failed-login counter is at or above the threshold,
	// regardless of whether the presented credentials are correct.
	ErrTooManyAttempts   = errors.New("too many failed attempts")
	ErrDuplicateIdentity = errors.New("identity already in use")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	// ErrInvalidOrExpiredToken covers purpose-bound tokens and codes that are unknown,
	// expired, or already consumed.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidInput          = errors.New("invalid input")
)
