package goToken

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete Manager configuration. Obtain a baseline from
// [DefaultConfig] or [LoadConfigFromEnv] and adjust it before Build.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Store    StoreConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures both token classes. Access and refresh tokens always
// use separate key material.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	Access        KeyMaterial
	Refresh       KeyMaterial
}

// KeyMaterial is the key set of one token class. For hs256 only PrivateKey
// is used. VerifyKeys maps additional kids to verification keys.
type KeyMaterial struct {
	PrivateKey []byte
	PublicKey  []byte
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls store layout and retention.
type SessionConfig struct {
	RedisPrefix string
	// AbsoluteLifetime caps how long one family may be rotated from its
	// login, regardless of activity. Zero disables the cap.
	AbsoluteLifetime time.Duration
	// DenylistRetention is how long revoked access jtis stay denied. It
	// must cover the access TTL plus leeway.
	DenylistRetention time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig describes the Redis endpoint used by [NewRedisClient]. A single
// address yields a standalone client, several a cluster client.
type StoreConfig struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          bool
}

// DefaultConfig returns the baseline configuration. Keys are left empty.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "gotoken",
			Leeway:        30 * time.Second,
			MaxFutureIAT:  10 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:       "gt",
			AbsoluteLifetime:  30 * 24 * time.Hour,
			DenylistRetention: 6 * time.Minute,
		},
		Security: SecurityConfig{
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Store: StoreConfig{
			Addrs:        []string{"127.0.0.1:6379"},
			PoolSize:     50,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Access = cloneKeyMaterial(cfg.JWT.Access)
	out.JWT.Refresh = cloneKeyMaterial(cfg.JWT.Refresh)
	if cfg.Store.Addrs != nil {
		out.Store.Addrs = append([]string(nil), cfg.Store.Addrs...)
	}
	return out
}

func cloneKeyMaterial(k KeyMaterial) KeyMaterial {
	out := KeyMaterial{
		PrivateKey: cloneBytes(k.PrivateKey),
		PublicKey:  cloneBytes(k.PublicKey),
		KeyID:      k.KeyID,
	}
	if len(k.VerifyKeys) > 0 {
		out.VerifyKeys = make(map[string][]byte, len(k.VerifyKeys))
		for kid, key := range k.VerifyKeys {
			out.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field rules. Key parsing itself happens in Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	switch c.JWT.SigningMethod {
	case "ed25519":
		for name, k := range map[string]KeyMaterial{"access": c.JWT.Access, "refresh": c.JWT.Refresh} {
			if len(k.PrivateKey) == 0 {
				return errors.New("ed25519 requires " + name + " PrivateKey")
			}
		}
	case "hs256":
		if len(c.JWT.Access.PrivateKey) == 0 || len(c.JWT.Refresh.PrivateKey) == 0 {
			return errors.New("hs256 requires access and refresh secrets")
		}
		if string(c.JWT.Access.PrivateKey) == string(c.JWT.Refresh.PrivateKey) {
			return errors.New("access and refresh secrets must differ")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, "{}") {
		return errors.New("Session RedisPrefix must not contain hash tag braces")
	}
	if c.Session.DenylistRetention < c.JWT.AccessTTL+c.JWT.Leeway {
		return errors.New("Session DenylistRetention must cover AccessTTL plus Leeway")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session AbsoluteLifetime must be >= 0")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.AbsoluteLifetime < c.JWT.AccessTTL {
		return errors.New("Session AbsoluteLifetime must be >= AccessTTL when set")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0 when throttling")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when throttling")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
