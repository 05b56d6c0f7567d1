// Package session provides the Redis-backed store for refresh-token session
// records, token-family lineage, the per-principal family index, and the
// access-token denylist.
//
// # Binary encoding
//
// Records and families are stored as compact versioned binary blobs. Status
// bytes sit at fixed offsets so the Lua scripts can compare-and-set them
// server side without decoding the whole value.
//
// # Atomicity
//
// Consuming a refresh record and advancing its family pointer happen in a
// single Lua script ([Store.Rotate]). Family revocation is also a single
// script ([Store.RevokeFamily]). Go code never reads a status and writes it
// back in a separate round trip.
//
// # Key layout
//
// Every key belonging to a principal carries the hash tag {principalID}, so
// the multi-key scripts stay valid on Redis Cluster.
//
// # What this package must NOT do
//
//   - Import goToken or jwt (no upward imports).
//   - Interpret a missing or inactive record as a security decision; callers
//     decide what reuse means.
package session
