package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/session"
)

type RevokeSessionStore interface {
	FamilyRevoker
	RevokeToken(ctx context.Context, principalID, tokenID string, d session.Denial, retention time.Duration) (session.RevokeTokenResult, error)
	GetRecord(ctx context.Context, principalID, tokenID string) (*session.Record, error)
	FamilyIDs(ctx context.Context, principalID string) ([]string, error)
}

// RevokeDeps captures revocation flow dependencies.
type RevokeDeps struct {
	SessionStore      RevokeSessionStore
	Now               func() time.Time
	DenylistRetention time.Duration
}

// RevokeResult summarizes what a revocation changed. A repeated revocation
// succeeds with zero counts.
type RevokeResult struct {
	FamilyIDs      []string
	Families       int
	Tokens         int
	FamilyChanged  bool
	TokenFound     bool
	TokenFamilyID  string
	FailedFamilies []string
}

func (d RevokeDeps) denial(reason string) session.Denial {
	return session.Denial{RevokedAt: nowFrom(d.Now).Unix(), Reason: reason}
}

// RunRevokeToken revokes a single refresh token and denylists its paired
// access token. Other family members are untouched.
func RunRevokeToken(ctx context.Context, principalID, tokenID, reason string, deps RevokeDeps) (RevokeResult, error) {
	res, err := deps.SessionStore.RevokeToken(ctx, principalID, tokenID, deps.denial(reason), deps.DenylistRetention)
	if err != nil {
		return RevokeResult{}, err
	}
	out := RevokeResult{TokenFound: res.Found, TokenFamilyID: res.FamilyID}
	if res.Changed {
		out.Tokens = 1
	}
	return out, nil
}

// RunRevokeFamily revokes every member of one family.
func RunRevokeFamily(ctx context.Context, principalID, familyID, reason string, deps RevokeDeps) (RevokeResult, error) {
	tokens, changed, err := deps.SessionStore.RevokeFamily(ctx, principalID, familyID, deps.denial(reason), deps.DenylistRetention)
	if err != nil {
		return RevokeResult{}, err
	}
	out := RevokeResult{
		FamilyIDs:     []string{familyID},
		Tokens:        tokens,
		FamilyChanged: changed,
	}
	if changed {
		out.Families = 1
	}
	return out, nil
}

// RunRevokeSession signs out the device holding tokenID by revoking the
// token's whole family. Unknown tokens are a no-op.
func RunRevokeSession(ctx context.Context, principalID, tokenID, reason string, deps RevokeDeps) (RevokeResult, error) {
	rec, err := deps.SessionStore.GetRecord(ctx, principalID, tokenID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return RevokeResult{}, nil
		}
		return RevokeResult{}, err
	}
	out, err := RunRevokeFamily(ctx, principalID, rec.FamilyID, reason, deps)
	out.TokenFound = true
	out.TokenFamilyID = rec.FamilyID
	return out, err
}

// RunRevokeAll revokes every family indexed for the principal. Families that
// fail are reported in FailedFamilies and their errors joined; the rest are
// still revoked. Families created concurrently with this call may survive.
func RunRevokeAll(ctx context.Context, principalID, reason string, deps RevokeDeps) (RevokeResult, error) {
	familyIDs, err := deps.SessionStore.FamilyIDs(ctx, principalID)
	if err != nil {
		return RevokeResult{}, err
	}

	d := deps.denial(reason)
	out := RevokeResult{FamilyIDs: familyIDs}
	var errs []error
	for _, fid := range familyIDs {
		tokens, changed, err := deps.SessionStore.RevokeFamily(ctx, principalID, fid, d, deps.DenylistRetention)
		if err != nil {
			out.FailedFamilies = append(out.FailedFamilies, fid)
			errs = append(errs, err)
			continue
		}
		out.Tokens += tokens
		if changed {
			out.Families++
		}
	}
	return out, errors.Join(errs...)
}
