package session

// Status is the lifecycle state of a single refresh token.
type Status uint8

const (
	StatusUnknown  Status = 0
	StatusActive   Status = 1
	StatusConsumed Status = 2
	StatusRevoked  Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusConsumed:
		return "consumed"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// FamilyStatus is the lifecycle state of a token family.
type FamilyStatus uint8

const (
	FamilyUnknown FamilyStatus = 0
	FamilyLive    FamilyStatus = 1
	FamilyDead    FamilyStatus = 2
)

func (s FamilyStatus) String() string {
	switch s {
	case FamilyLive:
		return "live"
	case FamilyDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Record is the session record stored under a refresh token's jti. It is
// flipped to consumed or revoked but never deleted before its TTL, so a
// replayed token can be told apart from an unknown one.
type Record struct {
	TokenID         string
	PrincipalID     string
	FamilyID        string
	Status          Status
	IssuedAt        int64
	ExpiresAt       int64
	AccessTokenID   string
	AccessExpiresAt int64
}

// Active reports whether the record may still be rotated.
func (r *Record) Active() bool {
	return r != nil && r.Status == StatusActive
}

// Family tracks the lineage of one login: the current refresh jti and the
// generation counter. Claims snapshot the principal at login so rotations can
// mint access tokens without another collaborator.
type Family struct {
	FamilyID    string
	PrincipalID string
	Status      FamilyStatus
	Generation  uint64
	CurrentID   string
	CreatedAt   int64
	LastUsedAt  int64
	Claims      Claims
}

// Live reports whether the family still has a usable current token.
func (f *Family) Live() bool {
	return f != nil && f.Status == FamilyLive
}

// Claims is the principal snapshot held by a family.
type Claims struct {
	Contact string
	Role    string
	Scopes  []string
}

// Denial is a denylist entry for an access token.
type Denial struct {
	RevokedAt int64
	Reason    string
}
