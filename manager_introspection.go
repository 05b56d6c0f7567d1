package goToken

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goToken/internal/flows"
)

// ListActiveSessions returns one entry per live family of the principal.
// Index entries of dead or expired families are pruned as a side effect.
//
//	Performance: 1 SMEMBERS + 2 pipelined GET batches.
func (m *Manager) ListActiveSessions(ctx context.Context, principalID string) ([]ActiveSession, error) {
	if !m.ready() {
		return nil, ErrManagerNotReady
	}
	if strings.TrimSpace(principalID) == "" {
		return nil, ErrInvalidPrincipal
	}

	live, err := flows.RunListActiveSessions(ctx, principalID, m.flows.Introspection)
	if err != nil {
		return nil, err
	}

	out := make([]ActiveSession, 0, len(live))
	for _, s := range live {
		out = append(out, ActiveSession{
			FamilyID:       s.Family.FamilyID,
			CurrentTokenID: s.Current.TokenID,
			Generation:     s.Family.Generation,
			CreatedAt:      time.Unix(s.Family.CreatedAt, 0),
			LastUsedAt:     time.Unix(s.Family.LastUsedAt, 0),
			IssuedAt:       time.Unix(s.Current.IssuedAt, 0),
			ExpiresAt:      time.Unix(s.Current.ExpiresAt, 0),
		})
	}
	return out, nil
}

// ActiveSessionCount returns the number of live families of the principal.
func (m *Manager) ActiveSessionCount(ctx context.Context, principalID string) (int, error) {
	if !m.ready() {
		return 0, ErrManagerNotReady
	}
	if strings.TrimSpace(principalID) == "" {
		return 0, ErrInvalidPrincipal
	}
	return flows.RunActiveSessionCount(ctx, principalID, m.flows.Introspection)
}

// Health pings the store.
func (m *Manager) Health(ctx context.Context) HealthStatus {
	if !m.ready() {
		return HealthStatus{}
	}
	ok, latency := flows.RunHealth(ctx, m.flows.Introspection)
	return HealthStatus{Available: ok, StoreLatency: latency}
}
