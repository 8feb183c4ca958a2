// Package common defines shared constants and sentinel errors used across
// the gate, the authority and the HTTP layer. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Identity errors. Every credential failure surfaces to clients as
	// ErrInvalidCredentials; the concrete reason stays in the audit log.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidMFACode     = errors.New("invalid or expired mfa code")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")

	// Account lifecycle errors.
	ErrMasterAdminImmutable = errors.New("master admin cannot be deactivated or demoted")
	ErrInvalidRole          = errors.New("invalid role")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenKind = errors.New("wrong token type")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Optional subsystems.
	ErrArchiveDisabled = errors.New("log archive is not configured")
)

// Reasons recorded for failed authentication attempts.
const (
	ReasonUserNotFound    = "user_not_found"
	ReasonInvalidPassword = "invalid_password"
	ReasonAccountInactive = "account_inactive"
	ReasonAccountExpired  = "account_expired"
	ReasonInvalidMFACode  = "invalid_mfa_code"
)

// AuthError carries the internal reason of a failed authentication. Its
// message is always the generic one so it can be returned to clients as is.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return ErrInvalidCredentials.Error() }

func (e *AuthError) Unwrap() error { return ErrInvalidCredentials }

// NewAuthError returns an AuthError for the given reason.
func NewAuthError(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

// AuthReason extracts the reason from err, or "" when err is not an AuthError.
func AuthReason(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
