package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	goToken "github.com/MrEthical07/goToken"
)

// Refresher is satisfied by *goToken.Manager.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (goToken.TokenPair, error)
}

const maxRefreshBody = 8 << 10

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RefreshHandler serves the token refresh endpoint. It accepts a POST with a
// JSON body {"refresh_token": "..."} and answers with a new pair. Status
// codes follow [Guard]: 401 on denial, 429 when throttled, 503 when the
// store is unavailable.
func RefreshHandler(rf Refresher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
			return
		}
		if rf == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}

		var req refreshRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRefreshBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		pair, err := rf.Refresh(withRequestInfo(r), req.RefreshToken)
		if err != nil {
			status, code := statusFor(err)
			writeError(w, status, code)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			TokenType:        "Bearer",
			ExpiresIn:        int64(time.Until(pair.AccessExpiresAt).Seconds()),
			AccessExpiresAt:  pair.AccessExpiresAt.UTC(),
			RefreshExpiresAt: pair.RefreshExpiresAt.UTC(),
		})
	})
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
