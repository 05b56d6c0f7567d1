package goToken

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Environment keys read by [LoadConfigFromEnv]. Key material is base64 or
// PEM text; durations use time.ParseDuration syntax.
const (
	EnvAccessTTL           = "GOTOKEN_ACCESS_TTL"
	EnvRefreshTTL          = "GOTOKEN_REFRESH_TTL"
	EnvSigningMethod       = "GOTOKEN_SIGNING_METHOD"
	EnvIssuer              = "GOTOKEN_ISSUER"
	EnvAudience            = "GOTOKEN_AUDIENCE"
	EnvLeeway              = "GOTOKEN_LEEWAY"
	EnvAccessPrivateKey    = "GOTOKEN_ACCESS_PRIVATE_KEY"
	EnvAccessPublicKey     = "GOTOKEN_ACCESS_PUBLIC_KEY"
	EnvAccessKeyID         = "GOTOKEN_ACCESS_KEY_ID"
	EnvRefreshPrivateKey   = "GOTOKEN_REFRESH_PRIVATE_KEY"
	EnvRefreshPublicKey    = "GOTOKEN_REFRESH_PUBLIC_KEY"
	EnvRefreshKeyID        = "GOTOKEN_REFRESH_KEY_ID"
	EnvRedisPrefix         = "GOTOKEN_REDIS_PREFIX"
	EnvAbsoluteLifetime    = "GOTOKEN_ABSOLUTE_LIFETIME"
	EnvDenylistRetention   = "GOTOKEN_DENYLIST_RETENTION"
	EnvRefreshThrottle     = "GOTOKEN_REFRESH_THROTTLE"
	EnvMaxRefreshAttempts  = "GOTOKEN_MAX_REFRESH_ATTEMPTS"
	EnvRefreshCooldown     = "GOTOKEN_REFRESH_COOLDOWN"
	EnvAuditEnabled        = "GOTOKEN_AUDIT_ENABLED"
	EnvAuditBufferSize     = "GOTOKEN_AUDIT_BUFFER_SIZE"
	EnvMetricsEnabled      = "GOTOKEN_METRICS_ENABLED"
	EnvMetricsLatency      = "GOTOKEN_METRICS_LATENCY"
	EnvRedisAddrs          = "GOTOKEN_REDIS_ADDRS"
	EnvRedisUsername       = "GOTOKEN_REDIS_USERNAME"
	EnvRedisPassword       = "GOTOKEN_REDIS_PASSWORD"
	EnvRedisDB             = "GOTOKEN_REDIS_DB"
	EnvRedisPoolSize       = "GOTOKEN_REDIS_POOL_SIZE"
	EnvRedisTLS            = "GOTOKEN_REDIS_TLS"
	EnvRedisDialTimeout    = "GOTOKEN_REDIS_DIAL_TIMEOUT"
	EnvRedisCommandTimeout = "GOTOKEN_REDIS_COMMAND_TIMEOUT"
)

// LoadConfigFromEnv builds a Config from the environment on top of
// [DefaultConfig]. When envFile is non-empty it is read first as a dotenv
// file; a missing file is ignored, any other read or parse error is
// returned. Environment variables override the file.
// The result is validated before it is returned.
func LoadConfigFromEnv(envFile string) (Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
			}
		}
	}
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault(EnvAccessTTL, def.JWT.AccessTTL)
	v.SetDefault(EnvRefreshTTL, def.JWT.RefreshTTL)
	v.SetDefault(EnvSigningMethod, def.JWT.SigningMethod)
	v.SetDefault(EnvIssuer, def.JWT.Issuer)
	v.SetDefault(EnvAudience, def.JWT.Audience)
	v.SetDefault(EnvLeeway, def.JWT.Leeway)
	v.SetDefault(EnvRedisPrefix, def.Session.RedisPrefix)
	v.SetDefault(EnvAbsoluteLifetime, def.Session.AbsoluteLifetime)
	v.SetDefault(EnvDenylistRetention, def.Session.DenylistRetention)
	v.SetDefault(EnvRefreshThrottle, def.Security.EnableRefreshThrottle)
	v.SetDefault(EnvMaxRefreshAttempts, def.Security.MaxRefreshAttempts)
	v.SetDefault(EnvRefreshCooldown, def.Security.RefreshCooldownDuration)
	v.SetDefault(EnvAuditEnabled, def.Audit.Enabled)
	v.SetDefault(EnvAuditBufferSize, def.Audit.BufferSize)
	v.SetDefault(EnvMetricsEnabled, def.Metrics.Enabled)
	v.SetDefault(EnvMetricsLatency, def.Metrics.EnableLatencyHistograms)
	v.SetDefault(EnvRedisAddrs, strings.Join(def.Store.Addrs, ","))
	v.SetDefault(EnvRedisDB, def.Store.DB)
	v.SetDefault(EnvRedisPoolSize, def.Store.PoolSize)
	v.SetDefault(EnvRedisTLS, def.Store.TLS)
	v.SetDefault(EnvRedisDialTimeout, def.Store.DialTimeout)
	v.SetDefault(EnvRedisCommandTimeout, def.Store.ReadTimeout)

	cfg := def
	cfg.JWT.AccessTTL = v.GetDuration(EnvAccessTTL)
	cfg.JWT.RefreshTTL = v.GetDuration(EnvRefreshTTL)
	cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(v.GetString(EnvSigningMethod)))
	cfg.JWT.Issuer = v.GetString(EnvIssuer)
	cfg.JWT.Audience = v.GetString(EnvAudience)
	cfg.JWT.Leeway = v.GetDuration(EnvLeeway)

	var err error
	if cfg.JWT.Access.PrivateKey, err = decodeKey(v, EnvAccessPrivateKey); err != nil {
		return Config{}, err
	}
	if cfg.JWT.Access.PublicKey, err = decodeKey(v, EnvAccessPublicKey); err != nil {
		return Config{}, err
	}
	if cfg.JWT.Refresh.PrivateKey, err = decodeKey(v, EnvRefreshPrivateKey); err != nil {
		return Config{}, err
	}
	if cfg.JWT.Refresh.PublicKey, err = decodeKey(v, EnvRefreshPublicKey); err != nil {
		return Config{}, err
	}
	cfg.JWT.Access.KeyID = v.GetString(EnvAccessKeyID)
	cfg.JWT.Refresh.KeyID = v.GetString(EnvRefreshKeyID)

	cfg.Session.RedisPrefix = v.GetString(EnvRedisPrefix)
	cfg.Session.AbsoluteLifetime = v.GetDuration(EnvAbsoluteLifetime)
	cfg.Session.DenylistRetention = v.GetDuration(EnvDenylistRetention)

	cfg.Security.EnableRefreshThrottle = v.GetBool(EnvRefreshThrottle)
	cfg.Security.MaxRefreshAttempts = v.GetInt(EnvMaxRefreshAttempts)
	cfg.Security.RefreshCooldownDuration = v.GetDuration(EnvRefreshCooldown)

	cfg.Audit.Enabled = v.GetBool(EnvAuditEnabled)
	cfg.Audit.BufferSize = v.GetInt(EnvAuditBufferSize)
	cfg.Metrics.Enabled = v.GetBool(EnvMetricsEnabled)
	cfg.Metrics.EnableLatencyHistograms = v.GetBool(EnvMetricsLatency)

	cfg.Store.Addrs = splitList(v.GetString(EnvRedisAddrs))
	cfg.Store.Username = v.GetString(EnvRedisUsername)
	cfg.Store.Password = v.GetString(EnvRedisPassword)
	cfg.Store.DB = v.GetInt(EnvRedisDB)
	cfg.Store.PoolSize = v.GetInt(EnvRedisPoolSize)
	cfg.Store.TLS = v.GetBool(EnvRedisTLS)
	cfg.Store.DialTimeout = v.GetDuration(EnvRedisDialTimeout)
	cfg.Store.ReadTimeout = v.GetDuration(EnvRedisCommandTimeout)
	cfg.Store.WriteTimeout = cfg.Store.ReadTimeout

	if len(cfg.Store.Addrs) == 0 {
		return Config{}, fmt.Errorf("config: %s must be set", EnvRedisAddrs)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decodeKey(v *viper.Viper, key string) ([]byte, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "-----BEGIN") {
		return []byte(raw), nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid base64: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewRedisClient builds a client for cfg. One address gives a standalone
// client and several give a cluster client; both satisfy
// redis.UniversalClient as accepted by [Builder.WithRedis].
func NewRedisClient(cfg StoreConfig) redis.UniversalClient {
	opts := &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewUniversalClient(opts)
}
