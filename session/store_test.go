package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "gt")
	return store, rdb, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func seedFamily(t *testing.T, store *Store, pid, fid, jti, accessJTI string) (*Record, *Family) {
	t.Helper()
	now := time.Now()
	rec := &Record{
		TokenID:         jti,
		PrincipalID:     pid,
		FamilyID:        fid,
		Status:          StatusActive,
		IssuedAt:        now.Unix(),
		ExpiresAt:       now.Add(time.Hour).Unix(),
		AccessTokenID:   accessJTI,
		AccessExpiresAt: now.Add(5 * time.Minute).Unix(),
	}
	fam := &Family{
		FamilyID:    fid,
		PrincipalID: pid,
		Status:      FamilyLive,
		Generation:  1,
		CurrentID:   jti,
		CreatedAt:   now.Unix(),
		LastUsedAt:  now.Unix(),
		Claims:      Claims{Contact: pid + "@example.com", Role: "member", Scopes: []string{"cab-1"}},
	}
	if err := store.Create(context.Background(), rec, fam, time.Hour); err != nil {
		t.Fatalf("create family: %v", err)
	}
	return rec, fam
}

func nextRecord(pid, fid, jti, accessJTI string) *Record {
	now := time.Now()
	return &Record{
		TokenID:         jti,
		PrincipalID:     pid,
		FamilyID:        fid,
		Status:          StatusActive,
		IssuedAt:        now.Unix(),
		ExpiresAt:       now.Add(time.Hour).Unix(),
		AccessTokenID:   accessJTI,
		AccessExpiresAt: now.Add(5 * time.Minute).Unix(),
	}
}

func rotate(store *Store, pid, fid, presented string, next *Record) (*Family, error) {
	return store.Rotate(context.Background(), RotateInput{
		PrincipalID: pid,
		FamilyID:    fid,
		PresentedID: presented,
		Next:        next,
		TTL:         time.Hour,
	})
}

func TestCreatePersistsRecordFamilyAndIndex(t *testing.T) {
	store, _, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	seedFamily(t, store, "p1", "f1", "r1", "a1")

	rec, err := store.GetRecord(ctx, "p1", "r1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.TokenID != "r1" || rec.FamilyID != "f1" || rec.AccessTokenID != "a1" || !rec.Active() {
		t.Fatalf("unexpected record: %+v", rec)
	}

	fam, err := store.GetFamily(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if fam.CurrentID != "r1" || fam.Generation != 1 || !fam.Live() || fam.Claims.Role != "member" {
		t.Fatalf("unexpected family: %+v", fam)
	}

	ids, err := store.FamilyIDs(ctx, "p1")
	if err != nil {
		t.Fatalf("family ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "f1" {
		t.Fatalf("unexpected family index: %v", ids)
	}

	for _, key := range mr.Keys() {
		if !strings.Contains(key, "{p1}") {
			t.Fatalf("key %q is missing the principal hash tag", key)
		}
		if mr.TTL(key) <= 0 {
			t.Fatalf("key %q has no ttl", key)
		}
	}
}

func TestRotateAdvancesFamilyAndConsumesPresented(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	seedFamily(t, store, "p1", "f1", "r1", "a1")

	fam, err := rotate(store, "p1", "f1", "r1", nextRecord("p1", "f1", "r2", "a2"))
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if fam.CurrentID != "r2" || fam.Generation != 2 || fam.FamilyID != "f1" {
		t.Fatalf("unexpected family after rotate: %+v", fam)
	}
	if len(fam.Claims.Scopes) != 1 || fam.Claims.Scopes[0] != "cab-1" {
		t.Fatalf("claims snapshot lost on rotate: %+v", fam.Claims)
	}

	old, err := store.GetRecord(ctx, "p1", "r1")
	if err != nil {
		t.Fatalf("get old record: %v", err)
	}
	if old.Status != StatusConsumed {
		t.Fatalf("expected consumed, got %s", old.Status)
	}
	next, err := store.GetRecord(ctx, "p1", "r2")
	if err != nil {
		t.Fatalf("get next record: %v", err)
	}
	if !next.Active() {
		t.Fatalf("expected next record active, got %s", next.Status)
	}

	members, err := rdb.SMembers(ctx, store.membersKey("p1", "f1")).Result()
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 family members, got %v", members)
	}

	stored, err := store.GetFamily(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if stored.CurrentID != "r2" || stored.Generation != 2 {
		t.Fatalf("stored family not advanced: %+v", stored)
	}
}

func TestRotateHistoryKeepsSingleActiveLink(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	seedFamily(t, store, "p1", "f1", "r0", "a0")
	issued := []string{"r0"}
	prevGen := uint64(1)

	for i := 1; i <= 10; i++ {
		jti := fmt.Sprintf("r%d", i)
		fam, err := rotate(store, "p1", "f1", issued[len(issued)-1], nextRecord("p1", "f1", jti, fmt.Sprintf("a%d", i)))
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
		if fam.Generation != prevGen+1 {
			t.Fatalf("rotate %d: generation %d, want %d", i, fam.Generation, prevGen+1)
		}
		if fam.CurrentID != jti {
			t.Fatalf("rotate %d: current %q, want %q", i, fam.CurrentID, jti)
		}
		prevGen = fam.Generation
		issued = append(issued, jti)

		for _, old := range issued[:len(issued)-1] {
			rec, err := store.GetRecord(ctx, "p1", old)
			if err != nil {
				t.Fatalf("rotate %d: get %s: %v", i, old, err)
			}
			if rec.Status != StatusConsumed {
				t.Fatalf("rotate %d: %s is %s, want consumed", i, old, rec.Status)
			}
		}

		members, err := rdb.SMembers(ctx, store.membersKey("p1", "f1")).Result()
		if err != nil {
			t.Fatalf("rotate %d: members: %v", i, err)
		}
		if len(members) != len(issued) {
			t.Fatalf("rotate %d: %d members, want %d", i, len(members), len(issued))
		}
		active := 0
		for _, id := range members {
			rec, err := store.GetRecord(ctx, "p1", id)
			if err != nil {
				t.Fatalf("rotate %d: member %s: %v", i, id, err)
			}
			if rec.Active() {
				active++
				if id != jti {
					t.Fatalf("rotate %d: active member %s is not the head %s", i, id, jti)
				}
			}
		}
		if active != 1 {
			t.Fatalf("rotate %d: %d active members, want 1", i, active)
		}
	}
}

func TestRotateReplayIsInactive(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	seedFamily(t, store, "p1", "f1", "r1", "a1")
	if _, err := rotate(store, "p1", "f1", "r1", nextRecord("p1", "f1", "r2", "a2")); err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	_, err := rotate(store, "p1", "f1", "r1", nextRecord("p1", "f1", "r3", "a3"))
	if !errors.Is(err, ErrRecordInactive) || !IsReuse(err) {
		t.Fatalf("expected inactive reuse error, got %v", err)
	}
	if _, err := store.GetRecord(context.Background(), "p1", "r3"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("replay must not write a next record, got %v", err)
	}
}

func TestRotateUnknownTokenNotFound(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	seedFamily(t, store, "p1", "f1", "r1", "a1")
	_, err := rotate(store, "p1", "f1", "forged", nextRecord("p1", "f1", "r2", "a2"))
	if !errors.Is(err, ErrRecordNotFound) || !IsReuse(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	seedFamily(t, store, "p1", "f1", "r1", "a1")

	const workers = 24
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		reused  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := rotate(store, "p1", "f1", "r1",
				nextRecord("p1", "f1", fmt.Sprintf("n%d", i), fmt.Sprintf("a%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case IsReuse(err):
				reused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 || reused != workers-1 {
		t.Fatalf("expected exactly one winner, got winners=%d reused=%d", winners, reused)
	}

	fam, err := store.GetFamily(context.Background(), "p1", "f1")
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if fam.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", fam.Generation)
	}
}

func TestRevokeFamilyIsIdempotentAndDenylists(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	seedFamily(t, store, "p1", "f1", "r1", "a1")
	if _, err := rotate(store, "p1", "f1", "r1", nextRecord("p1", "f1", "r2", "a2")); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	d := Denial{RevokedAt: time.Now().Unix(), Reason: "logout"}
	revoked, changed, err := store.RevokeFamily(ctx, "p1", "f1", d, 10*time.Minute)
	if err != nil {
		t.Fatalf("revoke family: %v", err)
	}
	if revoked != 1 || !changed {
		t.Fatalf("expected one active member revoked and family changed, got %d %v", revoked, changed)
	}

	for _, ajti := range []string{"a1", "a2"} {
		denial, err := store.LookupDenial(ctx, "p1", ajti)
		if err != nil {
			t.Fatalf("lookup denial: %v", err)
		}
		if denial == nil || denial.Reason != "logout" {
			t.Fatalf("expected %s denylisted, got %+v", ajti, denial)
		}
	}

	fam, err := store.GetFamily(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if fam.Live() {
		t.Fatal("expected family dead")
	}
	ids, err := store.FamilyIDs(ctx, "p1")
	if err != nil {
		t.Fatalf("family ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected family removed from index, got %v", ids)
	}

	revoked, changed, err = store.RevokeFamily(ctx, "p1", "f1", Denial{Reason: "again"}, 10*time.Minute)
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if revoked != 0 || changed {
		t.Fatalf("expected second revoke to be a no-op, got %d %v", revoked, changed)
	}
	denial, err := store.LookupDenial(ctx, "p1", "a2")
	if err != nil || denial == nil || denial.Reason != "logout" {
		t.Fatalf("existing denial must be kept, got %+v %v", denial, err)
	}
	if ttl := rdb.PTTL(ctx, store.denyKey("p1", "a2")).Val(); ttl <= 0 {
		t.Fatalf("denylist entry must carry a ttl, got %v", ttl)
	}

	_, err = rotate(store, "p1", "f1", "r2", nextRecord("p1", "f1", "r3", "a3"))
	if !errors.Is(err, ErrRecordInactive) {
		t.Fatalf("expected revoked current token to be inactive, got %v", err)
	}
}

func TestRevokeFamilySkipsExpiredAccessTokens(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	now := time.Now()
	rec := nextRecord("p1", "f1", "r1", "a1")
	rec.AccessExpiresAt = now.Add(-time.Minute).Unix()
	fam := &Family{FamilyID: "f1", PrincipalID: "p1", Status: FamilyLive, Generation: 1, CurrentID: "r1", CreatedAt: now.Unix()}
	if err := store.Create(ctx, rec, fam, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := store.RevokeFamily(ctx, "p1", "f1", Denial{Reason: "logout"}, time.Minute); err != nil {
		t.Fatalf("revoke family: %v", err)
	}
	denial, err := store.LookupDenial(ctx, "p1", "a1")
	if err != nil {
		t.Fatalf("lookup denial: %v", err)
	}
	if denial != nil {
		t.Fatalf("expired access token should not be denylisted, got %+v", denial)
	}
}

func TestRevokeTokenMarksSingleRecord(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	seedFamily(t, store, "p1", "f1", "r1", "a1")

	res, err := store.RevokeToken(ctx, "p1", "r1", Denial{Reason: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("revoke token: %v", err)
	}
	if !res.Found || !res.Changed || res.FamilyID != "f1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	rec, err := store.GetRecord(ctx, "p1", "r1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != StatusRevoked {
		t.Fatalf("expected revoked, got %s", rec.Status)
	}
	if d, _ := store.LookupDenial(ctx, "p1", "a1"); d == nil {
		t.Fatal("expected paired access token denylisted")
	}

	res, err = store.RevokeToken(ctx, "p1", "r1", Denial{Reason: "admin"}, time.Minute)
	if err != nil || !res.Found || res.Changed {
		t.Fatalf("expected idempotent second revoke, got %+v %v", res, err)
	}
	res, err = store.RevokeToken(ctx, "p1", "missing", Denial{Reason: "admin"}, time.Minute)
	if err != nil || res.Found {
		t.Fatalf("expected unknown token to be a no-op, got %+v %v", res, err)
	}
}

func TestGetFamiliesSkipsMissing(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	seedFamily(t, store, "p1", "f1", "r1", "a1")
	seedFamily(t, store, "p1", "f2", "r2", "a2")

	fams, err := store.GetFamilies(context.Background(), "p1", []string{"f1", "gone", "f2"})
	if err != nil {
		t.Fatalf("get families: %v", err)
	}
	if len(fams) != 2 || fams[0].FamilyID != "f1" || fams[1].FamilyID != "f2" {
		t.Fatalf("unexpected families: %+v", fams)
	}

	if err := store.PruneFamilies(context.Background(), "p1", "f1"); err != nil {
		t.Fatalf("prune: %v", err)
	}
	ids, _ := store.FamilyIDs(context.Background(), "p1")
	if len(ids) != 1 || ids[0] != "f2" {
		t.Fatalf("unexpected index after prune: %v", ids)
	}
}

func TestStoreErrorsWrapUnavailable(t *testing.T) {
	store, _, mr, done := newSessionStoreTest(t)
	defer done()
	mr.Close()

	ctx := context.Background()
	if _, err := store.GetRecord(ctx, "p1", "r1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("get record: expected ErrStoreUnavailable, got %v", err)
	}
	_, err := rotate(store, "p1", "f1", "r1", nextRecord("p1", "f1", "r2", "a2"))
	if !errors.Is(err, ErrStoreUnavailable) || IsReuse(err) {
		t.Fatalf("rotate: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.LookupDenial(ctx, "p1", "a1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("lookup denial: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("ping: expected ErrStoreUnavailable, got %v", err)
	}
}
