package goToken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// Manager issues, rotates, verifies and revokes session tokens. It holds no
// mutable state of its own; all session state lives in the shared store, so
// any number of Managers across processes may serve the same principals.
type Manager struct {
	tokens  *jwt.Manager
	store   *session.Store
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
	flows   flows.Deps
}

func (m *Manager) ready() bool {
	return m != nil && m.tokens != nil && m.store != nil
}

// Close flushes pending audit events and stops the dispatcher. It does not
// close the Redis client, which the caller owns.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.audit.Close()
}

// AuditDropped returns how many audit events were dropped.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot returns a copy of the current counters and histograms.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

// IssueLogin starts a new session family for an authenticated principal and
// returns its first token pair. Nothing is returned unless the session was
// persisted.
//
//	Performance: 1 MULTI/EXEC round trip.
func (m *Manager) IssueLogin(ctx context.Context, p Principal) (TokenPair, error) {
	if !m.ready() {
		return TokenPair{}, ErrManagerNotReady
	}
	if strings.TrimSpace(p.ID) == "" || !p.Role.Valid() {
		m.metricInc(MetricLoginFailure)
		return TokenPair{}, ErrInvalidPrincipal
	}

	res := flows.RunIssue(ctx, flows.IssueInput{
		PrincipalID: p.ID,
		Contact:     p.Contact,
		Role:        string(p.Role),
		Scopes:      append([]string(nil), p.Scopes...),
	}, m.flows.Issue)

	if res.Failure != flows.IssueFailureNone {
		m.metricInc(MetricLoginFailure)
		err := res.Err
		if res.Failure != flows.IssueFailureStore {
			err = fmt.Errorf("%w: %v", ErrTokenIssue, res.Err)
		}
		m.logger.Error("gotoken: login issue failed", "principal_id", p.ID, "error", res.Err)
		m.emitAudit(ctx, auditEventLoginIssued, false, p.ID, res.FamilyID, "", err, nil)
		return TokenPair{}, err
	}

	m.metricInc(MetricLoginIssued)
	m.emitAudit(ctx, auditEventLoginIssued, true, p.ID, res.FamilyID, res.RefreshID, nil, func() map[string]string {
		return map[string]string{
			"role":       string(p.Role),
			"user_agent": userAgentFromContext(ctx),
		}
	})

	return TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		FamilyID:         res.FamilyID,
		Generation:       1,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. A token can be exchanged
// exactly once; presenting a consumed, revoked or superseded token revokes
// its whole family and returns a [*DeniedError] with reason
// [ReasonReuseDetected]. Store failures return [ErrStoreUnavailable] and
// never a denial.
//
//	Performance: 1 EVALSHA, plus 1 INCR when throttling and 1 GET when an
//	absolute lifetime is configured.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !m.ready() {
		return TokenPair{}, ErrManagerNotReady
	}
	start := time.Now()
	defer m.observeSince(MetricRefreshLatency, start)

	res := flows.RunRotate(ctx, refreshToken, m.flows.Rotate)

	switch res.Failure {
	case flows.RotateFailureNone:
		m.metricInc(MetricRefreshSuccess)
		m.emitAudit(ctx, auditEventRefreshSuccess, true, res.PrincipalID, res.FamilyID, res.PresentedID, nil, func() map[string]string {
			return map[string]string{
				"generation": fmt.Sprint(res.Generation),
				"user_agent": userAgentFromContext(ctx),
			}
		})
		return TokenPair{
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			AccessExpiresAt:  res.AccessExpiresAt,
			RefreshExpiresAt: res.RefreshExpiresAt,
			FamilyID:         res.FamilyID,
			Generation:       res.Generation,
		}, nil

	case flows.RotateFailureDecode:
		m.metricInc(MetricRefreshInvalid)
		m.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrInvalidToken, nil)
		return TokenPair{}, deny(ReasonInvalidToken)

	case flows.RotateFailureRateLimited:
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			m.metricInc(MetricRefreshFailure)
			return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
		}
		m.metricInc(MetricRefreshRateLimited)
		m.emitAudit(ctx, auditEventRefreshRateLimited, false, res.PrincipalID, res.FamilyID, res.PresentedID, ErrRefreshRateLimited, nil)
		return TokenPair{}, ErrRefreshRateLimited

	case flows.RotateFailureLifetime:
		m.metricInc(MetricRefreshInvalid)
		m.emitAudit(ctx, auditEventRefreshInvalid, false, res.PrincipalID, res.FamilyID, res.PresentedID, ErrInvalidToken, func() map[string]string {
			return map[string]string{"reason": flows.RevokeReasonExpired}
		})
		if res.RevokeErr != nil {
			return TokenPair{}, res.RevokeErr
		}
		m.metricInc(MetricFamilyRevoked)
		return TokenPair{}, deny(ReasonInvalidToken)

	case flows.RotateFailureReuse:
		m.metricInc(MetricRefreshReuseDetected)
		m.logger.Warn("gotoken: refresh token reuse detected",
			"principal_id", res.PrincipalID,
			"family_id", res.FamilyID,
			"token_id", res.PresentedID,
			"cause", res.Err,
			"revoked", res.Revoked,
		)
		m.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.PrincipalID, res.FamilyID, res.PresentedID, res.Err, func() map[string]string {
			return map[string]string{
				"revoked_tokens": fmt.Sprint(res.Revoked),
				"ip":             clientIPFromContext(ctx),
			}
		})
		if res.RevokeErr != nil {
			m.metricInc(MetricRevokeFailure)
			return TokenPair{}, res.RevokeErr
		}
		m.metricInc(MetricFamilyRevoked)
		return TokenPair{}, deny(ReasonReuseDetected)

	case flows.RotateFailureStore:
		m.metricInc(MetricRefreshFailure)
		return TokenPair{}, res.Err

	default:
		m.metricInc(MetricRefreshFailure)
		m.logger.Error("gotoken: refresh issue failed", "family_id", res.FamilyID, "error", res.Err)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrTokenIssue, res.Err)
	}
}

// VerifyAccess validates an access token and checks the denylist. It returns
// a [*DeniedError] with [ReasonInvalidToken] or [ReasonRevoked] on denial.
//
//	Performance: 1 Redis GET.
func (m *Manager) VerifyAccess(ctx context.Context, accessToken string) (*Claims, error) {
	if !m.ready() {
		return nil, ErrManagerNotReady
	}
	start := time.Now()
	defer m.observeSince(MetricVerifyLatency, start)

	res := flows.RunVerify(ctx, accessToken, m.flows.Verify)

	switch res.Failure {
	case flows.VerifyFailureNone:
		m.metricInc(MetricVerifySuccess)
		return toClaims(res.Claims), nil
	case flows.VerifyFailureDecode:
		m.metricInc(MetricVerifyInvalid)
		return nil, deny(ReasonInvalidToken)
	case flows.VerifyFailureRevoked:
		m.metricInc(MetricVerifyRevoked)
		m.emitAudit(ctx, auditEventAccessDenied, false, res.Claims.Subject, res.Claims.FamilyID, res.Claims.ID, ErrRevoked, func() map[string]string {
			return map[string]string{"revoke_reason": res.Denial.Reason}
		})
		return nil, deny(ReasonRevoked)
	default:
		m.metricInc(MetricVerifyFailure)
		return nil, res.Err
	}
}

func toClaims(c *jwt.AccessClaims) *Claims {
	out := &Claims{
		PrincipalID: c.Subject,
		Contact:     c.Contact,
		Role:        Role(c.Role),
		Scopes:      c.Scopes,
		FamilyID:    c.FamilyID,
		TokenID:     c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
