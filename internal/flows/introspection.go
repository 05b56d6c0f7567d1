package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/session"
)

type IntrospectionSessionStore interface {
	FamilyIDs(ctx context.Context, principalID string) ([]string, error)
	GetFamilies(ctx context.Context, principalID string, familyIDs []string) ([]*session.Family, error)
	GetRecords(ctx context.Context, principalID string, tokenIDs []string) (map[string]*session.Record, error)
	PruneFamilies(ctx context.Context, principalID string, familyIDs ...string) error
	Ping(ctx context.Context) (time.Duration, error)
}

type IntrospectionDeps struct {
	SessionStore IntrospectionSessionStore
	Now          func() time.Time
	Warn         func(string, ...any)
}

// LiveSession pairs a live family with its current refresh record.
type LiveSession struct {
	Family  *session.Family
	Current *session.Record
}

// RunListActiveSessions returns one entry per live family of the principal.
// Index entries for dead or missing families are pruned on the way. A live
// family whose head is no longer usable is hidden but stays indexed, so a
// later family revocation still reaches its older access tokens.
func RunListActiveSessions(ctx context.Context, principalID string, deps IntrospectionDeps) ([]LiveSession, error) {
	familyIDs, err := deps.SessionStore.FamilyIDs(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if len(familyIDs) == 0 {
		return []LiveSession{}, nil
	}

	families, err := deps.SessionStore.GetFamilies(ctx, principalID, familyIDs)
	if err != nil {
		return nil, err
	}

	currentIDs := make([]string, 0, len(families))
	for _, fam := range families {
		if fam.Live() {
			currentIDs = append(currentIDs, fam.CurrentID)
		}
	}
	records, err := deps.SessionStore.GetRecords(ctx, principalID, currentIDs)
	if err != nil {
		return nil, err
	}

	now := nowFrom(deps.Now).Unix()
	kept := make(map[string]struct{}, len(families))
	out := make([]LiveSession, 0, len(families))
	for _, fam := range families {
		if !fam.Live() {
			continue
		}
		kept[fam.FamilyID] = struct{}{}
		rec, ok := records[fam.CurrentID]
		if !ok || !rec.Active() || rec.ExpiresAt <= now {
			continue
		}
		out = append(out, LiveSession{Family: fam, Current: rec})
	}

	var stale []string
	for _, fid := range familyIDs {
		if _, ok := kept[fid]; !ok {
			stale = append(stale, fid)
		}
	}
	if len(stale) > 0 {
		if err := deps.SessionStore.PruneFamilies(ctx, principalID, stale...); err != nil && deps.Warn != nil {
			deps.Warn("gotoken: pruning family index failed", "principal_id", principalID, "error", err)
		}
	}

	return out, nil
}

// RunActiveSessionCount counts live families for the principal.
func RunActiveSessionCount(ctx context.Context, principalID string, deps IntrospectionDeps) (int, error) {
	sessions, err := RunListActiveSessions(ctx, principalID, deps)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// RunHealth pings the store.
func RunHealth(ctx context.Context, deps IntrospectionDeps) (bool, time.Duration) {
	latency, err := deps.SessionStore.Ping(ctx)
	return err == nil, latency
}
