package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// Tokens is the subset of the jwt manager the flows need.
type Tokens interface {
	CreateAccess(in jwt.AccessInput) (string, time.Time, error)
	CreateRefresh(in jwt.RefreshInput) (string, error)
	ParseAccess(token string) (*jwt.AccessClaims, error)
	ParseRefresh(token string) (*jwt.RefreshClaims, error)
}

// FamilyRevoker revokes a whole family. Shared by rotation (on reuse) and the
// revocation flows.
type FamilyRevoker interface {
	RevokeFamily(ctx context.Context, principalID, familyID string, d session.Denial, retention time.Duration) (int, bool, error)
}

// Deps groups flow dependency sets. The root Manager builds this once and
// delegates each method to the matching flow.
type Deps struct {
	Issue         IssueDeps
	Rotate        RotateDeps
	Revoke        RevokeDeps
	Verify        VerifyDeps
	Logout        LogoutDeps
	Introspection IntrospectionDeps
}

func nowFrom(f func() time.Time) time.Time {
	if f == nil {
		return time.Now()
	}
	return f()
}
