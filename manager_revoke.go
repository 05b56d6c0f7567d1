package goToken

import (
	"context"
	"strings"

	"github.com/MrEthical07/goToken/internal/flows"
)

// RevokeToken revokes a single refresh token and denylists its paired access
// token. Other tokens of the family stay usable. Revoking an unknown or
// already revoked token succeeds with zero changes.
//
//	Performance: 1 EVALSHA.
func (m *Manager) RevokeToken(ctx context.Context, principalID, tokenID, reason string) (RevokeResult, error) {
	if !m.ready() {
		return RevokeResult{}, ErrManagerNotReady
	}
	if strings.TrimSpace(principalID) == "" || tokenID == "" {
		return RevokeResult{}, ErrInvalidPrincipal
	}
	reason = reasonOr(reason, RevokeReasonLogout)

	res, err := flows.RunRevokeToken(ctx, principalID, tokenID, reason, m.flows.Revoke)
	if err != nil {
		m.metricInc(MetricRevokeFailure)
		return RevokeResult{}, err
	}
	if res.Tokens > 0 {
		m.metricInc(MetricTokenRevoked)
		m.emitAudit(ctx, auditEventTokenRevoked, true, principalID, res.TokenFamilyID, tokenID, nil, reasonMeta(reason))
	}
	return RevokeResult{Tokens: res.Tokens}, nil
}

// RevokeFamily revokes every token of one family and denylists their
// unexpired access tokens.
//
//	Performance: 1 EVALSHA.
func (m *Manager) RevokeFamily(ctx context.Context, principalID, familyID, reason string) (RevokeResult, error) {
	if !m.ready() {
		return RevokeResult{}, ErrManagerNotReady
	}
	if strings.TrimSpace(principalID) == "" || familyID == "" {
		return RevokeResult{}, ErrInvalidPrincipal
	}
	reason = reasonOr(reason, RevokeReasonLogout)

	res, err := flows.RunRevokeFamily(ctx, principalID, familyID, reason, m.flows.Revoke)
	if err != nil {
		m.metricInc(MetricRevokeFailure)
		return RevokeResult{}, err
	}
	m.afterFamilyRevoke(ctx, principalID, familyID, reason, res)
	return RevokeResult{Families: res.Families, Tokens: res.Tokens}, nil
}

// RevokeSession signs out the device holding the given refresh token by
// revoking its whole family. An unknown token is a no-op.
//
//	Performance: 1 GET + 1 EVALSHA.
func (m *Manager) RevokeSession(ctx context.Context, principalID, refreshTokenID, reason string) (RevokeResult, error) {
	if !m.ready() {
		return RevokeResult{}, ErrManagerNotReady
	}
	if strings.TrimSpace(principalID) == "" || refreshTokenID == "" {
		return RevokeResult{}, ErrInvalidPrincipal
	}
	reason = reasonOr(reason, RevokeReasonLogout)

	res, err := flows.RunRevokeSession(ctx, principalID, refreshTokenID, reason, m.flows.Revoke)
	if err != nil {
		m.metricInc(MetricRevokeFailure)
		return RevokeResult{}, err
	}
	if res.TokenFound {
		m.metricInc(MetricLogout)
		m.afterFamilyRevoke(ctx, principalID, res.TokenFamilyID, reason, res)
	}
	return RevokeResult{Families: res.Families, Tokens: res.Tokens}, nil
}

// RevokeAllForPrincipal revokes every family of the principal. Families that
// could not be revoked are reported through the returned error; the others
// are revoked regardless. A login racing this call may survive it.
//
//	Performance: 1 SMEMBERS + 1 EVALSHA per family.
func (m *Manager) RevokeAllForPrincipal(ctx context.Context, principalID, reason string) (RevokeResult, error) {
	if !m.ready() {
		return RevokeResult{}, ErrManagerNotReady
	}
	if strings.TrimSpace(principalID) == "" {
		return RevokeResult{}, ErrInvalidPrincipal
	}
	reason = reasonOr(reason, RevokeReasonSignOutEverywhere)

	res, err := flows.RunRevokeAll(ctx, principalID, reason, m.flows.Revoke)
	out := RevokeResult{Families: res.Families, Tokens: res.Tokens}
	if err != nil {
		m.metricInc(MetricRevokeFailure)
		m.logger.Warn("gotoken: revoke all incomplete",
			"principal_id", principalID,
			"failed_families", len(res.FailedFamilies),
			"error", err,
		)
		m.emitAudit(ctx, auditEventLogoutAll, false, principalID, "", "", err, reasonMeta(reason))
		return out, err
	}

	m.metricInc(MetricLogoutAll)
	m.emitAudit(ctx, auditEventLogoutAll, true, principalID, "", "", nil, func() map[string]string {
		return map[string]string{
			"reason":   reason,
			"families": itoa(res.Families),
			"tokens":   itoa(res.Tokens),
		}
	})
	return out, nil
}

// LogoutByAccessToken ends the family the access token belongs to. It needs
// only a well-formed, unexpired access token, so it works even after the
// token was denylisted.
func (m *Manager) LogoutByAccessToken(ctx context.Context, accessToken string) (RevokeResult, error) {
	if !m.ready() {
		return RevokeResult{}, ErrManagerNotReady
	}

	res := flows.RunLogoutByAccessToken(ctx, accessToken, RevokeReasonLogout, m.flows.Logout)
	if res.DecodeErr != nil {
		return RevokeResult{}, deny(ReasonInvalidToken)
	}
	if res.Err != nil {
		m.metricInc(MetricRevokeFailure)
		return RevokeResult{}, res.Err
	}

	m.metricInc(MetricLogout)
	m.afterFamilyRevoke(ctx, res.PrincipalID, res.FamilyID, RevokeReasonLogout, res.Revoke)
	return RevokeResult{Families: res.Revoke.Families, Tokens: res.Revoke.Tokens}, nil
}

func (m *Manager) afterFamilyRevoke(ctx context.Context, principalID, familyID, reason string, res flows.RevokeResult) {
	if !res.FamilyChanged && res.Tokens == 0 {
		return
	}
	m.metricInc(MetricFamilyRevoked)
	m.emitAudit(ctx, auditEventFamilyRevoked, true, principalID, familyID, "", nil, func() map[string]string {
		return map[string]string{
			"reason": reason,
			"tokens": itoa(res.Tokens),
		}
	})
}

func reasonOr(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}
