package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps every failure to reach or talk to Redis.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrRecordNotFound is returned when no record exists for a refresh jti.
var ErrRecordNotFound = errors.New("session record not found")

// ErrRecordInactive is returned when a refresh record was already consumed or revoked.
var ErrRecordInactive = errors.New("session record inactive")

// ErrFamilyStale is returned when the family is dead or points at another token.
var ErrFamilyStale = errors.New("session family stale")

// ErrFamilyNotFound is returned when no family exists for an id.
var ErrFamilyNotFound = errors.New("session family not found")

// ErrRecordCorrupt is returned when a stored blob cannot be parsed.
var ErrRecordCorrupt = errors.New("session record corrupt")

// IsReuse reports whether err from [Store.Rotate] means the presented token
// can no longer be rotated: it was never issued, already used, or revoked.
func IsReuse(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrRecordInactive) ||
		errors.Is(err, ErrFamilyStale)
}

// Store is a Redis-backed store for refresh records, families, the principal
// index and the access-token denylist.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] backed by the given Redis client. prefix sets
// the key namespace.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gt"
	}
	return &Store{redis: rdb, prefix: prefix}
}

func tag(principalID string) string {
	return "{" + principalID + "}"
}

func (s *Store) recordPrefix(principalID string) string {
	return s.prefix + ":s:" + tag(principalID) + ":"
}

func (s *Store) denyPrefix(principalID string) string {
	return s.prefix + ":d:" + tag(principalID) + ":"
}

func (s *Store) recordKey(principalID, tokenID string) string {
	return s.recordPrefix(principalID) + tokenID
}

func (s *Store) familyKey(principalID, familyID string) string {
	return s.prefix + ":f:" + tag(principalID) + ":" + familyID
}

func (s *Store) membersKey(principalID, familyID string) string {
	return s.prefix + ":fm:" + tag(principalID) + ":" + familyID
}

func (s *Store) principalKey(principalID string) string {
	return s.prefix + ":p:" + tag(principalID)
}

func (s *Store) denyKey(principalID, accessTokenID string) string {
	return s.denyPrefix(principalID) + accessTokenID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Create persists the first record of a new family together with the family,
// its membership set and the principal index entry in one MULTI/EXEC.
//
//	Performance: 1 round trip (TxPipelined).
func (s *Store) Create(ctx context.Context, rec *Record, fam *Family, ttl time.Duration) error {
	if rec.PrincipalID == "" || rec.TokenID == "" || fam.FamilyID == "" {
		return errors.New("record requires principal, token and family id")
	}
	recData, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	famData, err := EncodeFamily(fam)
	if err != nil {
		return err
	}

	members := s.membersKey(rec.PrincipalID, fam.FamilyID)
	index := s.principalKey(rec.PrincipalID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.PrincipalID, rec.TokenID), recData, ttl)
		pipe.Set(ctx, s.familyKey(rec.PrincipalID, fam.FamilyID), famData, ttl)
		pipe.SAdd(ctx, members, rec.TokenID)
		pipe.PExpire(ctx, members, ttl)
		pipe.SAdd(ctx, index, fam.FamilyID)
		pipe.PExpire(ctx, index, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// RotateInput describes one rotation attempt.
type RotateInput struct {
	PrincipalID string
	FamilyID    string
	PresentedID string
	Next        *Record
	TTL         time.Duration
	Now         time.Time
}

// Rotate atomically consumes the presented record and, if the family still
// points at it, installs Next as the family's current token. It returns the
// updated family. Failures that mean reuse satisfy [IsReuse]; the presented
// record is left consumed either way.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Rotate(ctx context.Context, in RotateInput) (*Family, error) {
	if in.Next == nil || in.Next.TokenID == "" {
		return nil, errors.New("rotation requires a next record")
	}
	nextData, err := EncodeRecord(in.Next)
	if err != nil {
		return nil, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	keys := []string{
		s.recordKey(in.PrincipalID, in.PresentedID),
		s.familyKey(in.PrincipalID, in.FamilyID),
		s.membersKey(in.PrincipalID, in.FamilyID),
		s.recordKey(in.PrincipalID, in.Next.TokenID),
		s.principalKey(in.PrincipalID),
	}
	result, err := rotateLua.Run(ctx, s.redis, keys,
		in.PresentedID,
		in.Next.TokenID,
		nextData,
		in.TTL.Milliseconds(),
		now.Unix(),
	).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrStoreUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrRecordNotFound
	case rotateStatusInactive:
		if len(parts) > 1 {
			if st, ok := parts[1].(int64); ok {
				return nil, fmt.Errorf("%w: %s", ErrRecordInactive, Status(st))
			}
		}
		return nil, ErrRecordInactive
	case rotateStatusStale:
		return nil, ErrFamilyStale
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing family payload", ErrStoreUnavailable)
		}
		blob, ok := scriptBytes(parts[1])
		if !ok {
			return nil, fmt.Errorf("%w: invalid family payload", ErrStoreUnavailable)
		}
		fam, err := DecodeFamily(blob)
		if err != nil {
			return nil, errors.Join(ErrRecordCorrupt, err)
		}
		fam.FamilyID = in.FamilyID
		return fam, nil
	case rotateStatusCorrupt:
		return nil, ErrRecordCorrupt
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %d", ErrStoreUnavailable, code)
	}
}

// RevokeFamily marks every active member of the family revoked, denylists
// each member's unexpired access token, marks the family dead and removes it
// from the principal index. It is idempotent. It returns how many records
// changed state and whether the family itself did.
//
//	Performance: 1 Lua EVALSHA, O(family size).
func (s *Store) RevokeFamily(ctx context.Context, principalID, familyID string, d Denial, retention time.Duration) (int, bool, error) {
	denial, err := EncodeDenial(d)
	if err != nil {
		return 0, false, err
	}
	now := d.RevokedAt
	if now == 0 {
		now = time.Now().Unix()
	}

	keys := []string{
		s.familyKey(principalID, familyID),
		s.membersKey(principalID, familyID),
		s.principalKey(principalID),
	}
	result, err := revokeFamilyLua.Run(ctx, s.redis, keys,
		s.recordPrefix(principalID),
		s.denyPrefix(principalID),
		familyID,
		now,
		retention.Milliseconds(),
		denial,
	).Result()
	if err != nil {
		return 0, false, unavailable(err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) < 2 {
		return 0, false, fmt.Errorf("%w: invalid revoke script response", ErrStoreUnavailable)
	}
	revoked, _ := parts[0].(int64)
	changed, _ := parts[1].(int64)
	return int(revoked), changed == 1, nil
}

// RevokeTokenResult reports what [Store.RevokeToken] found.
type RevokeTokenResult struct {
	Found    bool
	Changed  bool
	FamilyID string
}

// RevokeToken marks a single record revoked and denylists its paired access
// token. Unknown tokens are a no-op.
func (s *Store) RevokeToken(ctx context.Context, principalID, tokenID string, d Denial, retention time.Duration) (RevokeTokenResult, error) {
	denial, err := EncodeDenial(d)
	if err != nil {
		return RevokeTokenResult{}, err
	}
	now := d.RevokedAt
	if now == 0 {
		now = time.Now().Unix()
	}

	result, err := revokeTokenLua.Run(ctx, s.redis,
		[]string{s.recordKey(principalID, tokenID)},
		s.denyPrefix(principalID),
		now,
		retention.Milliseconds(),
		denial,
	).Result()
	if err != nil {
		return RevokeTokenResult{}, unavailable(err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) < 3 {
		return RevokeTokenResult{}, fmt.Errorf("%w: invalid revoke script response", ErrStoreUnavailable)
	}
	code, _ := parts[0].(int64)
	switch code {
	case 0:
		return RevokeTokenResult{}, nil
	case 1:
		changed, _ := parts[1].(int64)
		fid, _ := scriptBytes(parts[2])
		return RevokeTokenResult{Found: true, Changed: changed == 1, FamilyID: string(fid)}, nil
	default:
		return RevokeTokenResult{}, ErrRecordCorrupt
	}
}

// GetRecord reads a record without mutating it.
func (s *Store) GetRecord(ctx context.Context, principalID, tokenID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(principalID, tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, unavailable(err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	rec.TokenID = tokenID
	return rec, nil
}

// GetRecords fetches several records in one pipeline, keyed by token id.
// Missing records are left out of the map.
func (s *Store) GetRecords(ctx context.Context, principalID string, tokenIDs []string) (map[string]*Record, error) {
	out := make(map[string]*Record, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return out, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(tokenIDs))
	for i, jti := range tokenIDs {
		cmds[i] = pipe.Get(ctx, s.recordKey(principalID, jti))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, unavailable(err)
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			return nil, errors.Join(ErrRecordCorrupt, err)
		}
		rec.TokenID = tokenIDs[i]
		out[rec.TokenID] = rec
	}
	return out, nil
}

// GetFamily reads a family without mutating it.
func (s *Store) GetFamily(ctx context.Context, principalID, familyID string) (*Family, error) {
	data, err := s.redis.Get(ctx, s.familyKey(principalID, familyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFamilyNotFound
		}
		return nil, unavailable(err)
	}
	fam, err := DecodeFamily(data)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	fam.FamilyID = familyID
	return fam, nil
}

// FamilyIDs returns the family ids indexed for a principal. Dead or expired
// families may still be listed until pruned.
func (s *Store) FamilyIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable(err)
	}
	return ids, nil
}

// GetFamilies fetches several families in one pipeline. Missing families
// are skipped; the returned slice keeps the order of the ids that were found.
func (s *Store) GetFamilies(ctx context.Context, principalID string, familyIDs []string) ([]*Family, error) {
	if len(familyIDs) == 0 {
		return []*Family{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(familyIDs))
	for i, fid := range familyIDs {
		cmds[i] = pipe.Get(ctx, s.familyKey(principalID, fid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	families := make([]*Family, 0, len(familyIDs))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, unavailable(err)
		}
		fam, err := DecodeFamily(data)
		if err != nil {
			return nil, errors.Join(ErrRecordCorrupt, err)
		}
		fam.FamilyID = familyIDs[i]
		families = append(families, fam)
	}
	return families, nil
}

// PruneFamilies drops family ids from the principal index.
func (s *Store) PruneFamilies(ctx context.Context, principalID string, familyIDs ...string) error {
	if len(familyIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(familyIDs))
	for i, id := range familyIDs {
		members[i] = id
	}
	if err := s.redis.SRem(ctx, s.principalKey(principalID), members...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// LookupDenial returns the denylist entry for an access token, or nil when
// the token is not denied.
//
//	Performance: 1 Redis GET.
func (s *Store) LookupDenial(ctx context.Context, principalID, accessTokenID string) (*Denial, error) {
	data, err := s.redis.Get(ctx, s.denyKey(principalID, accessTokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	d, err := DecodeDenial(data)
	if err != nil {
		// An unreadable entry still denies.
		return &Denial{Reason: "unknown"}, nil
	}
	return d, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

func scriptBytes(v interface{}) ([]byte, bool) {
	switch b := v.(type) {
	case string:
		return []byte(b), true
	case []byte:
		return b, true
	case int64:
		return []byte(strconv.FormatInt(b, 10)), true
	default:
		return nil, false
	}
}
