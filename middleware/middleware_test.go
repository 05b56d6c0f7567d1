package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goToken "github.com/MrEthical07/goToken"
)

type fakeVerifier struct {
	claims *goToken.Claims
	err    error
	got    string
}

func (f *fakeVerifier) VerifyAccess(ctx context.Context, token string) (*goToken.Claims, error) {
	f.got = token
	return f.claims, f.err
}

type fakeRefresher struct {
	pair goToken.TokenPair
	err  error
}

func (f *fakeRefresher) Refresh(ctx context.Context, token string) (goToken.TokenPair, error) {
	return f.pair, f.err
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
			return
		}
		fmt.Fprint(w, claims.PrincipalID)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestGuardStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		status int
		code   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "empty bearer", header: "Bearer   ", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "revoked", header: "Bearer t", err: &goToken.DeniedError{Reason: goToken.ReasonRevoked}, status: http.StatusUnauthorized, code: "revoked"},
		{name: "store down", header: "Bearer t", err: fmt.Errorf("verify: %w", goToken.ErrStoreUnavailable), status: http.StatusServiceUnavailable, code: "unavailable"},
		{name: "unexpected", header: "Bearer t", err: goToken.ErrTokenIssue, status: http.StatusInternalServerError, code: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{err: tt.err}
			h := Guard(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestGuardPassesClaims(t *testing.T) {
	v := &fakeVerifier{claims: &goToken.Claims{PrincipalID: "alice", Role: goToken.RoleAdmin}}
	h := Guard(v)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "bearer tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if v.got != "tok-1" {
		t.Fatalf("verifier got %q", v.got)
	}
}

func TestRequireRole(t *testing.T) {
	v := &fakeVerifier{claims: &goToken.Claims{PrincipalID: "bob", Role: goToken.RoleViewer}}
	h := Guard(v)(RequireRole(okHandler(t), goToken.RoleOwner, goToken.RoleAdmin))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRefreshHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		status int
	}{
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "bad json", method: http.MethodPost, body: "{", status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, body: `{"token":"x"}`, status: http.StatusBadRequest},
		{name: "reuse", method: http.MethodPost, body: `{"refresh_token":"x"}`, err: &goToken.DeniedError{Reason: goToken.ReasonReuseDetected}, status: http.StatusUnauthorized},
		{name: "throttled", method: http.MethodPost, body: `{"refresh_token":"x"}`, err: goToken.ErrRefreshRateLimited, status: http.StatusTooManyRequests},
		{name: "store down", method: http.MethodPost, body: `{"refresh_token":"x"}`, err: goToken.ErrStoreUnavailable, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RefreshHandler(&fakeRefresher{err: tt.err})
			req := httptest.NewRequest(tt.method, "/auth/refresh", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestRefreshHandlerEndToEnd(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.Access.PrivateKey = []byte(strings.Repeat("a", 32))
	cfg.JWT.Refresh.PrivateKey = []byte(strings.Repeat("r", 32))
	cfg.Security.EnableRefreshThrottle = false

	m, err := goToken.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	defer m.Close()

	pair, err := m.IssueLogin(context.Background(), goToken.Principal{ID: "alice", Role: goToken.RoleMember})
	if err != nil {
		t.Fatalf("IssueLogin: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/refresh", RefreshHandler(m))
	mux.Handle("/me", Guard(m)(okHandler(t)))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	post := func(refresh string) *http.Response {
		t.Helper()
		body := fmt.Sprintf(`{"refresh_token":%q}`, refresh)
		resp, err := http.Post(srv.URL+"/auth/refresh", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post refresh: %v", err)
		}
		return resp
	}

	resp := post(pair.RefreshToken)
	var got tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || got.TokenType != "Bearer" || got.AccessToken == "" {
		t.Fatalf("unexpected refresh response %d %+v", resp.StatusCode, got)
	}
	if got.RefreshExpiresAt.Before(time.Now()) {
		t.Fatalf("refresh expiry in the past: %v", got.RefreshExpiresAt)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	req.Header.Set("Authorization", "Bearer "+got.AccessToken)
	me, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get /me: %v", err)
	}
	me.Body.Close()
	if me.StatusCode != http.StatusOK {
		t.Fatalf("/me status = %d", me.StatusCode)
	}

	replay := post(pair.RefreshToken)
	replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", replay.StatusCode)
	}

	// The reuse cascade killed the family, so the newest access token is denied too.
	me, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get /me: %v", err)
	}
	me.Body.Close()
	if me.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/me after reuse status = %d, want 401", me.StatusCode)
	}
}
