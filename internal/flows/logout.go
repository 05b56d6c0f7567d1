package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Revoke      RevokeDeps
}

type LogoutByAccessResult struct {
	PrincipalID string
	FamilyID    string
	Revoke      RevokeResult
	DecodeErr   error
	Err         error
}

// RunLogoutByAccessToken ends the family the access token belongs to. The
// token only needs a valid signature and lifetime; an already denylisted
// token still logs out, which keeps the call idempotent.
func RunLogoutByAccessToken(ctx context.Context, tokenStr, reason string, deps LogoutDeps) LogoutByAccessResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{DecodeErr: err}
	}

	res, err := RunRevokeFamily(ctx, claims.Subject, claims.FamilyID, reason, deps.Revoke)
	return LogoutByAccessResult{
		PrincipalID: claims.Subject,
		FamilyID:    claims.FamilyID,
		Revoke:      res,
		Err:         err,
	}
}
