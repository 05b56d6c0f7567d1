package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t testing.TB) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t testing.TB) (*Manager, ed25519.PrivateKey, ed25519.PrivateKey) {
	t.Helper()
	accessPub, accessPriv := newEdKeys(t)
	refreshPub, refreshPriv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL: time.Minute,
		Access:    KeyConfig{SigningMethod: MethodEd25519, PrivateKey: accessPriv, PublicKey: accessPub},
		Refresh:   KeyConfig{SigningMethod: MethodEd25519, PrivateKey: refreshPriv, PublicKey: refreshPub},
		Issuer:    "gotoken",
		Audience:  "api",
		Leeway:    30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, accessPriv, refreshPriv
}

func TestAccessRoundTripCarriesClaims(t *testing.T) {
	m, _, _ := newTestManager(t)

	token, exp, err := m.CreateAccess(AccessInput{
		PrincipalID: "p1",
		Contact:     "p1@example.com",
		Role:        "admin",
		Scopes:      []string{"cab-1", "cab-2"},
		FamilyID:    "fam-1",
		TokenID:     "jti-1",
	})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 0 || time.Until(exp) > time.Minute {
		t.Fatalf("unexpected access expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "p1" || claims.ID != "jti-1" || claims.FamilyID != "fam-1" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.Role != "admin" || len(claims.Scopes) != 2 || claims.Contact != "p1@example.com" {
		t.Fatalf("unexpected principal claims: %+v", claims)
	}
}

func TestRefreshTokenNotAcceptedAsAccess(t *testing.T) {
	m, _, _ := newTestManager(t)
	now := time.Now()

	refresh, err := m.CreateRefresh(RefreshInput{
		PrincipalID: "p1",
		FamilyID:    "fam-1",
		TokenID:     "r1",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	if _, err := m.ParseAccess(refresh); err == nil {
		t.Fatal("expected refresh token to be rejected by access parser")
	}
	claims, err := m.ParseRefresh(refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.FamilyID != "fam-1" || claims.ID != "r1" || claims.Subject != "p1" {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}
}

func TestParseRefreshRejectsAccessUseWithRefreshKey(t *testing.T) {
	m, _, refreshPriv := newTestManager(t)

	forged := AccessClaims{
		Role: "admin",
		Use:  useAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "p1",
			ID:        "x",
			Issuer:    "gotoken",
			Audience:  gjwt.ClaimStrings{"api"},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, forged).SignedString(refreshPriv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseRefresh(signed); err == nil {
		t.Fatal("expected token with wrong use claim to be rejected")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m, _, _ := newTestManager(t)

	claims := AccessClaims{Use: useAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "p1",
		ID:        "x",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessExpiryAndLeeway(t *testing.T) {
	m, accessPriv, _ := newTestManager(t)

	mk := func(exp time.Duration) string {
		c := AccessClaims{Use: useAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "p1",
			ID:        "x",
			Issuer:    "gotoken",
			Audience:  gjwt.ClaimStrings{"api"},
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-5 * time.Minute)),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(exp)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(accessPriv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.ParseAccess(mk(-15 * time.Second)); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	_, err := m.ParseAccess(mk(-2 * time.Minute))
	if !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseAccessRejectsTamperedPayload(t *testing.T) {
	m, _, _ := newTestManager(t)
	token, _, err := m.CreateAccess(AccessInput{PrincipalID: "p1", Role: "member", FamilyID: "f", TokenID: "a1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := m.ParseAccess(strings.Join(parts, ".")); err == nil {
		t.Fatal("expected tampered signature to fail")
	}
}

func TestNewManagerRejectsSharedHMACSecret(t *testing.T) {
	secret := []byte(strings.Repeat("k", 32))
	_, err := NewManager(Config{
		AccessTTL: time.Minute,
		Access:    KeyConfig{SigningMethod: MethodHS256, PrivateKey: secret},
		Refresh:   KeyConfig{SigningMethod: MethodHS256, PrivateKey: secret},
	})
	if err == nil {
		t.Fatal("expected shared secret across token classes to be rejected")
	}
}

func TestNewManagerRejectsShortHMACSecret(t *testing.T) {
	_, err := NewManager(Config{
		AccessTTL: time.Minute,
		Access:    KeyConfig{SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		Refresh:   KeyConfig{SigningMethod: MethodHS256, PrivateKey: []byte(strings.Repeat("r", 32))},
	})
	if err == nil {
		t.Fatal("expected short hmac key to be rejected")
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, priv2 := newEdKeys(t)
	refreshPub, refreshPriv := newEdKeys(t)

	signer, err := NewManager(Config{
		AccessTTL: time.Minute,
		Access:    KeyConfig{SigningMethod: MethodEd25519, PrivateKey: priv2, PublicKey: pub2, KeyID: "k2"},
		Refresh:   KeyConfig{SigningMethod: MethodEd25519, PrivateKey: refreshPriv, PublicKey: refreshPub},
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewManager(Config{
		AccessTTL: time.Minute,
		Access: KeyConfig{
			SigningMethod: MethodEd25519,
			PrivateKey:    priv1,
			KeyID:         "k1",
			VerifyKeys:    map[string][]byte{"k1": pub1},
		},
		Refresh: KeyConfig{SigningMethod: MethodEd25519, PrivateKey: refreshPriv, PublicKey: refreshPub},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, _, err := signer.CreateAccess(AccessInput{PrincipalID: "p1", Role: "member", FamilyID: "f", TokenID: "a1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := verifier.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}

// FuzzParseRefresh feeds arbitrary strings to the refresh parser.
// Invalid inputs must error, never panic.
func FuzzParseRefresh(f *testing.F) {
	m, _, _ := newTestManager(f)
	now := time.Now()
	seed, err := m.CreateRefresh(RefreshInput{PrincipalID: "p", FamilyID: "f", TokenID: "r", IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := m.ParseRefresh(token)
		if err == nil && claims == nil {
			t.Fatal("nil claims without error")
		}
	})
}
