package errors

import (
	"errors"
	"fmt"
)

// Common error types for the Tunzadent API client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTwoFACode   = errors.New("invalid 2FA code")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")

	// Token errors
	ErrRefreshTokenMissing = errors.New("refresh token missing")
	ErrRefreshFailed       = errors.New("token refresh failed")

	// Transport errors
	ErrConnectivity = errors.New("could not reach server")

	// Request errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// Storage errors
	ErrCorruptedSession = errors.New("corrupted session state")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
