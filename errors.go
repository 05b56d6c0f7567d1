package goToken

import (
	"errors"

	"github.com/MrEthical07/goToken/session"
)

var (
	// ErrDenied matches every [*DeniedError]. Callers that only need a yes/no
	// answer test for it with errors.Is.
	ErrDenied = errors.New("token denied")
	// ErrInvalidToken is the reason sentinel for malformed, forged, expired or
	// wrong-class tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrReuseDetected is the reason sentinel for a refresh token presented
	// after it was consumed or revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrRevoked is the reason sentinel for a denylisted access token.
	ErrRevoked = errors.New("token revoked")
	// ErrStoreUnavailable is returned when the session store cannot be reached.
	// It is never reported as a denial; callers should retry or fail closed
	// with a 503, not ask the user to log in again.
	ErrStoreUnavailable = session.ErrStoreUnavailable
	// ErrInvalidPrincipal is returned by IssueLogin for an empty id or unknown role.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrRefreshRateLimited is returned when a family rotates too often.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrManagerNotReady is returned when a nil or partially built Manager is used.
	ErrManagerNotReady = errors.New("manager not initialized")
	// ErrTokenIssue is returned when ids or signatures could not be produced.
	ErrTokenIssue = errors.New("token issuance failed")
)

// DenyReason names why a token was refused.
type DenyReason string

const (
	ReasonInvalidToken  DenyReason = "invalid_token"
	ReasonReuseDetected DenyReason = "reuse_detected"
	ReasonRevoked       DenyReason = "revoked"
)

// DeniedError is returned for every authentication denial. It matches
// [ErrDenied] and unwraps to the reason sentinel, so both
// errors.Is(err, ErrDenied) and errors.Is(err, ErrReuseDetected) hold for a
// reuse denial.
type DeniedError struct {
	Reason DenyReason
	cause  error
}

func (e *DeniedError) Error() string {
	return "token denied: " + string(e.Reason)
}

// Is reports whether target is ErrDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Unwrap returns the reason sentinel.
func (e *DeniedError) Unwrap() error {
	return e.cause
}

func deny(reason DenyReason) error {
	var cause error
	switch reason {
	case ReasonReuseDetected:
		cause = ErrReuseDetected
	case ReasonRevoked:
		cause = ErrRevoked
	default:
		cause = ErrInvalidToken
	}
	return &DeniedError{Reason: reason, cause: cause}
}

// DenyReasonOf returns the reason carried by err, or "" if err is not a denial.
func DenyReasonOf(err error) DenyReason {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
