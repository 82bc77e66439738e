// Package stores provides the short-lived record stores backing handoff
// codes: a Redis store for production and a mutex-guarded in-memory store
// for single-process deployments and tests.
//
// # Design
//
// Each record is a versioned, binary-encoded blob stored under a key derived
// from the hashed token, with an absolute TTL. Save never overwrites (NX).
// Take is the only consuming read: on Redis it is a single Lua script that
// GETs and DELs the key, so concurrent takers of one key observe exactly one
// success.
//
// # Architecture boundaries
//
// This package owns persistence and single-use semantics for handoff
// records. It does NOT generate tokens, check tenant membership, or decide
// whether an exchange succeeds; the root engine does.
//
// # What this package must NOT do
//
//   - Import the root handoff package or any sibling internal package.
//   - Store or log raw tokens; callers pass already-hashed keys.
package stores
