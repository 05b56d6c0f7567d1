package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goToken "github.com/MrEthical07/goToken"
)

// Verifier is satisfied by *goToken.Manager.
type Verifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (*goToken.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*goToken.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*goToken.Claims)
	return c, ok
}

// Guard verifies the bearer access token of every request. Denials answer
// 401, store failures 503; the store is never treated as a reason to let a
// request through.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusServiceUnavailable, "unavailable")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				writeError(w, http.StatusUnauthorized, string(goToken.ReasonInvalidToken))
				return
			}

			ctx := withRequestInfo(r)
			claims, err := v.VerifyAccess(ctx, token)
			if err != nil {
				status, code := statusFor(err)
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				writeError(w, status, code)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps next so only principals holding one of roles pass.
// It must run behind [Guard].
func RequireRole(next http.Handler, roles ...goToken.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, string(goToken.ReasonInvalidToken))
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "forbidden")
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goToken.ErrDenied):
		return http.StatusUnauthorized, string(goToken.DenyReasonOf(err))
	case errors.Is(err, goToken.ErrRefreshRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, goToken.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func withRequestInfo(r *http.Request) context.Context {
	ctx := r.Context()
	if ua := r.UserAgent(); ua != "" {
		ctx = goToken.WithUserAgent(ctx, ua)
	}
	if ip := clientIP(r); ip != "" {
		ctx = goToken.WithClientIP(ctx, ip)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
