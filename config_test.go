package goToken

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without keys must not validate")
	}
}

func TestConfigValidateRules(t *testing.T) {
	cases := map[string]func(*Config){
		"zero access ttl":         func(c *Config) { c.JWT.AccessTTL = 0 },
		"refresh not longer":      func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL },
		"negative leeway":         func(c *Config) { c.JWT.Leeway = -time.Second },
		"unknown method":          func(c *Config) { c.JWT.SigningMethod = "rs256" },
		"shared secret":           func(c *Config) { c.JWT.Refresh.PrivateKey = c.JWT.Access.PrivateKey },
		"missing refresh secret":  func(c *Config) { c.JWT.Refresh.PrivateKey = nil },
		"empty prefix":            func(c *Config) { c.Session.RedisPrefix = " " },
		"prefix with hash tag":    func(c *Config) { c.Session.RedisPrefix = "gt{x}" },
		"short denylist":          func(c *Config) { c.Session.DenylistRetention = c.JWT.AccessTTL },
		"lifetime below access":   func(c *Config) { c.Session.AbsoluteLifetime = time.Minute },
		"throttle without budget": func(c *Config) { c.Security.EnableRefreshThrottle = true; c.Security.MaxRefreshAttempts = 0 },
		"audit without buffer":    func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config must validate: %v", err)
	}
}

func TestConfigEd25519(t *testing.T) {
	_, accessKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, refreshKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.Access.PrivateKey = accessKey
	cfg.JWT.Refresh.PrivateKey = refreshKey
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ed25519 config: %v", err)
	}

	cfg.JWT.Refresh.PrivateKey = nil
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "refresh") {
		t.Fatalf("expected missing refresh key error, got %v", err)
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Access.VerifyKeys = map[string][]byte{"k1": []byte("0123456789abcdef0123456789abcdef")}
	out := cloneConfig(cfg)

	cfg.JWT.Access.PrivateKey[0] = 'z'
	cfg.JWT.Access.VerifyKeys["k1"][0] = 'z'
	cfg.Store.Addrs[0] = "mutated:1"

	if out.JWT.Access.PrivateKey[0] != 'a' {
		t.Fatal("private key shares memory with source")
	}
	if out.JWT.Access.VerifyKeys["k1"][0] != '0' {
		t.Fatal("verify keys share memory with source")
	}
	if out.Store.Addrs[0] != "127.0.0.1:6379" {
		t.Fatal("store addrs share memory with source")
	}
}
