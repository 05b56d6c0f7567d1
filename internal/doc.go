// Package internal contains helpers that are private to goToken, such as
// token and family id generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: orchestrators for every Manager operation
//   - metrics: lock-free counters and latency buckets
//   - rate: Redis-backed refresh throttle
//
// Nothing here may appear in the public goToken API.
package internal
