package goToken

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkVerifyAccessHS256(b *testing.B) {
	benchmarkVerify(b, testConfig())
}

func BenchmarkVerifyAccessEd25519(b *testing.B) {
	benchmarkVerify(b, ed25519TestConfig(b))
}

func benchmarkVerify(b *testing.B, cfg Config) {
	m, cleanup := newBenchmarkManager(b, cfg)
	defer cleanup()

	pair, err := m.IssueLogin(context.Background(), alice())
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.VerifyAccess(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	m, cleanup := newBenchmarkManager(b, testConfig())
	defer cleanup()

	pair, err := m.IssueLogin(context.Background(), alice())
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err = m.Refresh(context.Background(), pair.RefreshToken)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkIssueLogin(b *testing.B) {
	m, cleanup := newBenchmarkManager(b, testConfig())
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.IssueLogin(context.Background(), alice()); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func newBenchmarkManager(tb testing.TB, cfg Config) (*Manager, func()) {
	tb.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	m, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		tb.Fatalf("build manager: %v", err)
	}
	return m, func() {
		m.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func ed25519TestConfig(tb testing.TB) Config {
	tb.Helper()
	_, accessKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("generate access key: %v", err)
	}
	_, refreshKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("generate refresh key: %v", err)
	}
	cfg := testConfig()
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.Access = KeyMaterial{PrivateKey: accessKey, KeyID: "access-1"}
	cfg.JWT.Refresh = KeyMaterial{PrivateKey: refreshKey, KeyID: "refresh-1"}
	return cfg
}
