// Package rate provides the Redis-backed refresh throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:rl:<familyID>", one window per token family.
//
// # What this package must NOT do
//
//   - Decide what a throttled refresh means for the family.
//   - Be imported outside the goToken module.
package rate
