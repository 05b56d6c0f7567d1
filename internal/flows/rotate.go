package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureRateLimited
	RotateFailureLifetime
	RotateFailureReuse
	RotateFailureStore
	RotateFailureIDs
	RotateFailureSign
)

// RevokeReasonReuse is recorded on denylist entries written after reuse.
const RevokeReasonReuse = "reuse_detected"

// RevokeReasonExpired is recorded when a family outlives its absolute lifetime.
const RevokeReasonExpired = "session_expired"

type RotateRateLimiter interface {
	CheckRefresh(ctx context.Context, familyID string) error
}

type RotateSessionStore interface {
	FamilyRevoker
	Rotate(ctx context.Context, in session.RotateInput) (*session.Family, error)
	GetFamily(ctx context.Context, principalID, familyID string) (*session.Family, error)
	GetRecord(ctx context.Context, principalID, tokenID string) (*session.Record, error)
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	Tokens            Tokens
	SessionStore      RotateSessionStore
	RateLimiter       RotateRateLimiter
	NewTokenID        func(time.Time) (string, error)
	Now               func() time.Time
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	AbsoluteLifetime  time.Duration
	RecordGrace       time.Duration
	DenylistRetention time.Duration
	Warn              func(string, ...any)
}

// RotateResult carries either the new pair or failure metadata. On reuse,
// Revoked reports how many records the cascade revoked and RevokeErr is set
// if the cascade itself could not complete.
type RotateResult struct {
	Failure          RotateFailureKind
	Err              error
	PrincipalID      string
	FamilyID         string
	PresentedID      string
	Generation       uint64
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Revoked          int
	RevokeErr        error
}

// RunRotate exchanges a refresh token for a new pair. The consume and
// advance steps run as one atomic store operation; any sign that the
// presented token is not the family's live head revokes the whole family.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		return RotateResult{Failure: RotateFailureDecode, Err: err}
	}

	res := RotateResult{
		PrincipalID: claims.Subject,
		FamilyID:    claims.FamilyID,
		PresentedID: claims.ID,
	}

	now := nowFrom(deps.Now)

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, claims.FamilyID); err != nil {
			// A throttled family must still notice a replayed token.
			if reuseErr := peekStale(ctx, claims, deps); reuseErr != nil {
				res.Failure = RotateFailureReuse
				res.Err = reuseErr
				res.Revoked, res.RevokeErr = revokeAfterRotate(ctx, claims, RevokeReasonReuse, now, deps)
				return res
			}
			res.Failure = RotateFailureRateLimited
			res.Err = err
			return res
		}
	}

	refreshExp := now.Add(deps.RefreshTTL)

	if deps.AbsoluteLifetime > 0 {
		fam, err := deps.SessionStore.GetFamily(ctx, claims.Subject, claims.FamilyID)
		switch {
		case err == nil:
			limit := time.Unix(fam.CreatedAt, 0).Add(deps.AbsoluteLifetime)
			if !limit.After(now) {
				res.Failure = RotateFailureLifetime
				res.Err = errors.New("session lifetime exceeded")
				res.Revoked, res.RevokeErr = revokeAfterRotate(ctx, claims, RevokeReasonExpired, now, deps)
				return res
			}
			if limit.Before(refreshExp) {
				refreshExp = limit
			}
		case errors.Is(err, session.ErrFamilyNotFound):
			// The rotate script reports this as stale.
		default:
			res.Failure = RotateFailureStore
			res.Err = err
			return res
		}
	}

	nextID, err := deps.NewTokenID(now)
	if err != nil {
		res.Failure = RotateFailureIDs
		res.Err = err
		return res
	}
	accessID, err := deps.NewTokenID(now)
	if err != nil {
		res.Failure = RotateFailureIDs
		res.Err = err
		return res
	}

	refresh, err := deps.Tokens.CreateRefresh(jwt.RefreshInput{
		PrincipalID: claims.Subject,
		FamilyID:    claims.FamilyID,
		TokenID:     nextID,
		IssuedAt:    now,
		ExpiresAt:   refreshExp,
	})
	if err != nil {
		res.Failure = RotateFailureSign
		res.Err = err
		return res
	}

	accessExp := now.Add(deps.AccessTTL)
	next := &session.Record{
		TokenID:         nextID,
		PrincipalID:     claims.Subject,
		FamilyID:        claims.FamilyID,
		Status:          session.StatusActive,
		IssuedAt:        now.Unix(),
		ExpiresAt:       refreshExp.Unix(),
		AccessTokenID:   accessID,
		AccessExpiresAt: accessExp.Unix(),
	}

	fam, err := deps.SessionStore.Rotate(ctx, session.RotateInput{
		PrincipalID: claims.Subject,
		FamilyID:    claims.FamilyID,
		PresentedID: claims.ID,
		Next:        next,
		TTL:         refreshExp.Sub(now) + deps.RecordGrace,
		Now:         now,
	})
	if err != nil {
		if session.IsReuse(err) {
			res.Failure = RotateFailureReuse
			res.Err = err
			res.Revoked, res.RevokeErr = revokeAfterRotate(ctx, claims, RevokeReasonReuse, now, deps)
			return res
		}
		res.Failure = RotateFailureStore
		res.Err = err
		return res
	}

	access, accessExp, err := deps.Tokens.CreateAccess(jwt.AccessInput{
		PrincipalID: claims.Subject,
		Contact:     fam.Claims.Contact,
		Role:        fam.Claims.Role,
		Scopes:      fam.Claims.Scopes,
		FamilyID:    claims.FamilyID,
		TokenID:     accessID,
		IssuedAt:    now,
	})
	if err != nil {
		// The family already points at nextID, whose refresh token is never
		// handed out. The lineage cannot be continued.
		if deps.Warn != nil {
			deps.Warn("gotoken: access token signing failed after rotation", "family_id", claims.FamilyID, "error", err)
		}
		res.Failure = RotateFailureSign
		res.Err = err
		return res
	}

	res.Generation = fam.Generation
	res.AccessToken = access
	res.RefreshToken = refresh
	res.AccessExpiresAt = accessExp
	res.RefreshExpiresAt = refreshExp
	return res
}

// peekStale reports a reuse error when the presented refresh token is no
// longer its family's active record. Store failures are not reuse.
func peekStale(ctx context.Context, claims *jwt.RefreshClaims, deps RotateDeps) error {
	rec, err := deps.SessionStore.GetRecord(ctx, claims.Subject, claims.ID)
	switch {
	case err == nil:
		if !rec.Active() {
			return session.ErrRecordInactive
		}
		return nil
	case errors.Is(err, session.ErrRecordNotFound):
		return err
	default:
		return nil
	}
}

func revokeAfterRotate(ctx context.Context, claims *jwt.RefreshClaims, reason string, now time.Time, deps RotateDeps) (int, error) {
	revoked, _, err := deps.SessionStore.RevokeFamily(ctx, claims.Subject, claims.FamilyID, session.Denial{
		RevokedAt: now.Unix(),
		Reason:    reason,
	}, deps.DenylistRetention)
	if err != nil && deps.Warn != nil {
		deps.Warn("gotoken: family revocation failed", "family_id", claims.FamilyID, "reason", reason, "error", err)
	}
	return revoked, err
}
