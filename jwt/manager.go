package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrTokenUse is returned when a token of one class is presented as the other.
var ErrTokenUse = errors.New("token used for wrong purpose")

// Config configures a [Manager].
type Config struct {
	AccessTTL    time.Duration
	Access       KeyConfig
	Refresh      KeyConfig
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

// Manager signs and verifies access and refresh tokens. It holds only
// immutable configuration and is safe for concurrent use.
type Manager struct {
	config  Config
	access  *keySet
	refresh *keySet
}

// AccessClaims is the payload of an access token. Subject is the principal id
// and ID is the token id (jti).
type AccessClaims struct {
	Contact  string   `json:"cid,omitempty"`
	Role     string   `json:"role"`
	Scopes   []string `json:"scp,omitempty"`
	FamilyID string   `json:"fid"`
	Use      string   `json:"tu"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token.
type RefreshClaims struct {
	FamilyID string `json:"fid"`
	Use      string `json:"tu"`
	jwt.RegisteredClaims
}

// AccessInput describes the access token to mint.
type AccessInput struct {
	PrincipalID string
	Contact     string
	Role        string
	Scopes      []string
	FamilyID    string
	TokenID     string
	IssuedAt    time.Time
}

// RefreshInput describes the refresh token to mint. ExpiresAt is explicit so
// callers can cap it to an absolute session lifetime.
type RefreshInput struct {
	PrincipalID string
	FamilyID    string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// NewManager validates cfg and builds the per-class key sets.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	access, err := newKeySet("access", cfg.Access)
	if err != nil {
		return nil, err
	}
	refresh, err := newKeySet("refresh", cfg.Refresh)
	if err != nil {
		return nil, err
	}
	if sameSecret(cfg.Access, cfg.Refresh) {
		return nil, errors.New("access and refresh tokens must use distinct keys")
	}

	return &Manager{config: cfg, access: access, refresh: refresh}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs an access token and returns it with its expiry.
func (m *Manager) CreateAccess(in AccessInput) (string, time.Time, error) {
	if in.PrincipalID == "" || in.TokenID == "" {
		return "", time.Time{}, errors.New("access token requires principal and token id")
	}
	now := in.IssuedAt
	if now.IsZero() {
		now = time.Now()
	}
	exp := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		Contact:          in.Contact,
		Role:             in.Role,
		Scopes:           in.Scopes,
		FamilyID:         in.FamilyID,
		Use:              useAccess,
		RegisteredClaims: m.registered(in.PrincipalID, in.TokenID, now, exp),
	}

	signed, err := m.sign(m.access, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// CreateRefresh signs a refresh token.
func (m *Manager) CreateRefresh(in RefreshInput) (string, error) {
	if in.PrincipalID == "" || in.TokenID == "" || in.FamilyID == "" {
		return "", errors.New("refresh token requires principal, token and family id")
	}
	if !in.ExpiresAt.After(in.IssuedAt) {
		return "", errors.New("refresh token expiry must follow issue time")
	}

	claims := RefreshClaims{
		FamilyID:         in.FamilyID,
		Use:              useRefresh,
		RegisteredClaims: m.registered(in.PrincipalID, in.TokenID, in.IssuedAt, in.ExpiresAt),
	}
	return m.sign(m.refresh, claims)
}

// ParseAccess verifies signature, expiry, issuer, audience and token class.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(m.access, tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != useAccess {
		return nil, ErrTokenUse
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if err := m.checkFutureIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token. It does not consult any store.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(m.refresh, tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != useRefresh {
		return nil, ErrTokenUse
	}
	if claims.Subject == "" || claims.ID == "" || claims.FamilyID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if err := m.checkFutureIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) registered(sub, jti string, iat, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   sub,
		ID:        jti,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) sign(ks *keySet, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(ks.method, claims)
	if ks.cfg.KeyID != "" {
		token.Header["kid"] = ks.cfg.KeyID
	}
	key, err := ks.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

func (m *Manager) parse(ks *keySet, tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ks.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, ks.keyFunc)
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

func (m *Manager) checkFutureIAT(iat *jwt.NumericDate) error {
	if iat == nil || m.config.MaxFutureIAT <= 0 {
		return nil
	}
	if iat.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", jwt.ErrTokenInvalidClaims)
	}
	return nil
}

func sameSecret(a, b KeyConfig) bool {
	if len(a.PrivateKey) == 0 || len(a.PrivateKey) != len(b.PrivateKey) {
		return false
	}
	return string(a.PrivateKey) == string(b.PrivateKey)
}
