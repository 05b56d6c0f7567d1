package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureIDs
	IssueFailureSign
	IssueFailureStore
)

type IssueSessionStore interface {
	Create(ctx context.Context, rec *session.Record, fam *session.Family, ttl time.Duration) error
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Tokens       Tokens
	SessionStore IssueSessionStore
	NewTokenID   func(time.Time) (string, error)
	NewFamilyID  func() (string, error)
	Now          func() time.Time
	RefreshTTL   time.Duration
	// RecordGrace extends stored record TTLs past token expiry so a token
	// accepted within the parser's leeway still finds its record.
	RecordGrace time.Duration
}

// IssueInput is the principal snapshot the new family is issued for.
type IssueInput struct {
	PrincipalID string
	Contact     string
	Role        string
	Scopes      []string
}

// IssueResult carries either the issued pair or failure metadata.
type IssueResult struct {
	Failure          IssueFailureKind
	Err              error
	FamilyID         string
	RefreshID        string
	AccessID         string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RunIssue starts a new family: it mints both tokens and persists the first
// record, the family, the membership set and the principal index entry in a
// single transaction. Tokens are only returned once the write succeeded.
func RunIssue(ctx context.Context, in IssueInput, deps IssueDeps) IssueResult {
	now := nowFrom(deps.Now)

	familyID, err := deps.NewFamilyID()
	if err != nil {
		return IssueResult{Failure: IssueFailureIDs, Err: err}
	}
	refreshID, err := deps.NewTokenID(now)
	if err != nil {
		return IssueResult{Failure: IssueFailureIDs, Err: err, FamilyID: familyID}
	}
	accessID, err := deps.NewTokenID(now)
	if err != nil {
		return IssueResult{Failure: IssueFailureIDs, Err: err, FamilyID: familyID}
	}

	access, accessExp, err := deps.Tokens.CreateAccess(jwt.AccessInput{
		PrincipalID: in.PrincipalID,
		Contact:     in.Contact,
		Role:        in.Role,
		Scopes:      in.Scopes,
		FamilyID:    familyID,
		TokenID:     accessID,
		IssuedAt:    now,
	})
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, FamilyID: familyID}
	}

	refreshExp := now.Add(deps.RefreshTTL)
	refresh, err := deps.Tokens.CreateRefresh(jwt.RefreshInput{
		PrincipalID: in.PrincipalID,
		FamilyID:    familyID,
		TokenID:     refreshID,
		IssuedAt:    now,
		ExpiresAt:   refreshExp,
	})
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, FamilyID: familyID}
	}

	rec := &session.Record{
		TokenID:         refreshID,
		PrincipalID:     in.PrincipalID,
		FamilyID:        familyID,
		Status:          session.StatusActive,
		IssuedAt:        now.Unix(),
		ExpiresAt:       refreshExp.Unix(),
		AccessTokenID:   accessID,
		AccessExpiresAt: accessExp.Unix(),
	}
	fam := &session.Family{
		FamilyID:    familyID,
		PrincipalID: in.PrincipalID,
		Status:      session.FamilyLive,
		Generation:  1,
		CurrentID:   refreshID,
		CreatedAt:   now.Unix(),
		LastUsedAt:  now.Unix(),
		Claims: session.Claims{
			Contact: in.Contact,
			Role:    in.Role,
			Scopes:  in.Scopes,
		},
	}

	if err := deps.SessionStore.Create(ctx, rec, fam, deps.RefreshTTL+deps.RecordGrace); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, FamilyID: familyID}
	}

	return IssueResult{
		FamilyID:         familyID,
		RefreshID:        refreshID,
		AccessID:         accessID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
}
