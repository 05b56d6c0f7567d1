package goToken

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
)

// Role is the fixed set of roles a principal can hold.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Principal is the authenticated identity a login is issued for. Its claims
// are copied into the session family and reused on every rotation, so a
// change of role or scopes takes effect only after a new login.
type Principal struct {
	ID      string
	Contact string
	Role    Role
	// Scopes lists the tenant or cabinet ids the principal may act in.
	Scopes []string
}

// TokenPair is returned by [Manager.IssueLogin] and [Manager.Refresh].
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	FamilyID         string
	// Generation is the family generation the refresh token belongs to.
	Generation uint64
}

// Claims is the verified content of an access token.
type Claims struct {
	PrincipalID string
	Contact     string
	Role        Role
	Scopes      []string
	FamilyID    string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// ActiveSession describes one live family, as returned by
// [Manager.ListActiveSessions].
type ActiveSession struct {
	FamilyID       string
	CurrentTokenID string
	Generation     uint64
	CreatedAt      time.Time
	LastUsedAt     time.Time
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// HealthStatus reports store reachability.
type HealthStatus struct {
	Available    bool
	StoreLatency time.Duration
}

// RevokeResult summarizes a revocation call. Repeating a revocation succeeds
// and reports zero changes.
type RevokeResult struct {
	Families int
	Tokens   int
}

// Revocation reasons used by the Manager. Callers may pass any other string.
const (
	RevokeReasonLogout            = "logout"
	RevokeReasonReuseDetected     = "reuse_detected"
	RevokeReasonSignOutEverywhere = "sign_out_everywhere"
	RevokeReasonPasswordChange    = "password_change"
	RevokeReasonRoleChange        = "role_change"
	RevokeReasonAdmin             = "admin"
)

// AuditEvent is an alias for the internal audit event model.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes events as structured log records.
type SlogSink = internalaudit.SlogSink

// NewSlogSink creates a sink logging to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// NewChannelSink creates a channel-backed sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

var _ AuditSink = NoOpSink{}
