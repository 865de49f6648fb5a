package service

import (
	"fmt"
	"net/http"
	"time"
)

// Machine-readable error codes surfaced to clients.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenRevoked       = "TOKEN_REVOKED"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeCSRFMissing        = "CSRF_MISSING"
	CodeCSRFInvalid        = "CSRF_INVALID"
)

// AuthError is a request-scoped failure translated to an HTTP status and
// code pair at the handler boundary. It never propagates past it.
type AuthError struct {
	Code        string
	Description string
	Status      int
	// RetryAfter is set only for ACCOUNT_LOCKED.
	RetryAfter time.Duration
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func errToken(code, desc string) *AuthError {
	return &AuthError{Code: code, Description: desc, Status: http.StatusUnauthorized}
}

// errInvalidCredentials is identical for unknown accounts and wrong
// passwords so responses cannot be used to enumerate usernames.
func errInvalidCredentials() *AuthError {
	return &AuthError{
		Code:        CodeInvalidCredentials,
		Description: "Wrong username or password.",
		Status:      http.StatusUnauthorized,
	}
}

func errAccountLocked(retryAfter time.Duration) *AuthError {
	return &AuthError{
		Code:        CodeAccountLocked,
		Description: "Too many failed attempts. Try again later.",
		Status:      http.StatusTooManyRequests,
		RetryAfter:  retryAfter,
	}
}
