package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// VerifyFailureKind classifies access verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureDecode
	VerifyFailureRevoked
	VerifyFailureStore
)

type VerifySessionStore interface {
	LookupDenial(ctx context.Context, principalID, accessTokenID string) (*session.Denial, error)
}

// VerifyDeps captures access verification dependencies.
type VerifyDeps struct {
	Tokens       Tokens
	SessionStore VerifySessionStore
}

// VerifyResult carries the verified claims or failure metadata.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Denial  *session.Denial
}

// RunVerify checks an access token's signature and lifetime, then makes a
// single denylist lookup.
func RunVerify(ctx context.Context, accessToken string, deps VerifyDeps) VerifyResult {
	claims, err := deps.Tokens.ParseAccess(accessToken)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureDecode, Err: err}
	}

	denial, err := deps.SessionStore.LookupDenial(ctx, claims.Subject, claims.ID)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureStore, Err: err, Claims: claims}
	}
	if denial != nil {
		return VerifyResult{Failure: VerifyFailureRevoked, Claims: claims, Denial: denial}
	}
	return VerifyResult{Claims: claims}
}
