package goToken

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goToken/session"
)

const (
	auditEventLoginIssued          = "login_issued"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventTokenRevoked         = "token_revoked"
	auditEventFamilyRevoked        = "family_revoked"
	auditEventLogoutAll            = "logout_all"
	auditEventAccessDenied         = "access_denied"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken AuditErrorCode = "invalid_token"
	auditErrRefreshReuse AuditErrorCode = "refresh_reuse"
	auditErrRevoked      AuditErrorCode = "revoked"
	auditErrRateLimited  AuditErrorCode = "rate_limited"
	auditErrUnavailable  AuditErrorCode = "backend_unavailable"
	auditErrIssue        AuditErrorCode = "issue_failed"
	auditErrInternal     AuditErrorCode = "internal_error"
)

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	familyID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   m.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		FamilyID:    familyID,
		TokenID:     tokenID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if reason, ok := metadata["reason"]; ok {
		event.Reason = reason
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrReuseDetected), session.IsReuse(err):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRevoked):
		return auditErrRevoked
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrTokenIssue):
		return auditErrIssue
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	default:
		return auditErrInternal
	}
}

func reasonMeta(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
