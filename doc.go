// Package goToken manages the lifecycle of session tokens: it issues JWT
// access and refresh token pairs at login, rotates refresh tokens exactly once
// with reuse detection, verifies access tokens against a revocation denylist,
// and revokes single tokens, token families or every session of a principal.
//
// All session state lives in Redis. A [Manager] built through [Builder.Build]
// is immutable and safe to call from many goroutines and many processes at
// once; the consume step of a rotation runs as a server-side script, so two
// concurrent rotations of the same token can never both succeed.
//
// # Architecture boundaries
//
// goToken is the public surface. It exposes [Manager], [Builder], [Config] and
// value types ([TokenPair], [Claims], [ActiveSession]). Token signing lives in
// the jwt sub-package, the Redis layout and scripts in session, and flow
// orchestration, rate limiting and audit dispatch under internal/.
//
// # Errors
//
// Every authentication denial is a [*DeniedError]. It matches [ErrDenied] and
// unwraps to [ErrInvalidToken], [ErrReuseDetected] or [ErrRevoked]. Store
// failures return [ErrStoreUnavailable] and are never reported as a denial.
//
// # Performance contract
//
// VerifyAccess is the hot path: one signature check and one Redis GET.
// Refresh costs one script call. Revocation of a family is one script call
// regardless of how many generations it has.
package goToken
