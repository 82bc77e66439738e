// Package rate provides the Redis-backed fixed-window counters that throttle
// handoff issuance per user and failed exchanges per client IP.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes
// (after the configured namespace):
//   - hi: issuance per user
//   - hx: failed exchange per IP
//
// # What this package must NOT do
//
//   - Record tokens or emails in keys.
//   - Be imported outside the handoff module.
package rate
