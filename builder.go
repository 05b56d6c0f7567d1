package goToken

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goToken/internal"
	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Manager]. Configure it once during start-up and call
// Build; a Builder cannot be reused.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store client. Standalone, failover and cluster
// clients are accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. It has no effect
// unless Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// withClock overrides the time source. Used by tests.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, parses key material and returns a
// ready Manager. The Manager is immutable and safe for concurrent use.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	method := jwt.SigningMethod(cfg.JWT.SigningMethod)
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:    cfg.JWT.AccessTTL,
		Access:       keyConfig(method, cfg.JWT.Access),
		Refresh:      keyConfig(method, cfg.JWT.Refresh),
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		Leeway:       cfg.JWT.Leeway,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gotoken")

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SESSION STORE --------
	store := session.NewStore(b.redis, cfg.Session.RedisPrefix)

	limiter := rate.New(b.redis, rate.Config{
		Enabled:  cfg.Security.EnableRefreshThrottle,
		Prefix:   cfg.Session.RedisPrefix,
		Max:      cfg.Security.MaxRefreshAttempts,
		Cooldown: cfg.Security.RefreshCooldownDuration,
	})

	m := &Manager{
		tokens:  jm,
		store:   store,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger,
		}, b.auditSink),
	}

	warn := func(msg string, args ...any) { logger.Warn(msg, args...) }
	grace := cfg.JWT.Leeway

	revoke := flows.RevokeDeps{
		SessionStore:      store,
		Now:               now,
		DenylistRetention: cfg.Session.DenylistRetention,
	}
	m.flows = flows.Deps{
		Issue: flows.IssueDeps{
			Tokens:       jm,
			SessionStore: store,
			NewTokenID:   internal.NewTokenID,
			NewFamilyID:  internal.NewFamilyID,
			Now:          now,
			RefreshTTL:   cfg.JWT.RefreshTTL,
			RecordGrace:  grace,
		},
		Rotate: flows.RotateDeps{
			Tokens:            jm,
			SessionStore:      store,
			RateLimiter:       limiter,
			NewTokenID:        internal.NewTokenID,
			Now:               now,
			AccessTTL:         cfg.JWT.AccessTTL,
			RefreshTTL:        cfg.JWT.RefreshTTL,
			AbsoluteLifetime:  cfg.Session.AbsoluteLifetime,
			RecordGrace:       grace,
			DenylistRetention: cfg.Session.DenylistRetention,
			Warn:              warn,
		},
		Revoke: revoke,
		Verify: flows.VerifyDeps{
			Tokens:       jm,
			SessionStore: store,
		},
		Logout: flows.LogoutDeps{
			ParseAccess: jm.ParseAccess,
			Revoke:      revoke,
		},
		Introspection: flows.IntrospectionDeps{
			SessionStore: store,
			Now:          now,
			Warn:         warn,
		},
	}

	b.built = true

	return m, nil
}

func keyConfig(method jwt.SigningMethod, k KeyMaterial) jwt.KeyConfig {
	kc := jwt.KeyConfig{
		SigningMethod: method,
		PrivateKey:    cloneBytes(k.PrivateKey),
		PublicKey:     cloneBytes(k.PublicKey),
		KeyID:         k.KeyID,
	}
	if len(k.VerifyKeys) > 0 {
		kc.VerifyKeys = make(map[string][]byte, len(k.VerifyKeys))
		for kid, key := range k.VerifyKeys {
			kc.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return kc
}
