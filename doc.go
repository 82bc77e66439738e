// Package handoff moves an authenticated user from the central application
// into a tenant subdomain without a second login.
//
// The central host issues a single-use code bound to a (user, tenant) pair,
// stores it in a short-lived cache entry and redirects the browser to the
// tenant host with the code in the query string. The tenant host exchanges
// the code exactly once, re-checks tenant membership and receives the
// identity payload it needs to establish a local session.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// handoff is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([CodeStore], [MembershipChecker],
// [DomainResolver]) and value types. Redis encoding, rate limiting and
// audit dispatch live under internal/.
//
// # What this package must NOT do
//
//   - Log or audit a raw handoff token. Only the cache key hash and an
//     8-character fingerprint ever leave [Engine.Issue].
//   - Tell a caller why an exchange failed. [Engine.Exchange] reports success
//     or no result; reasons go to audit and metrics only.
//   - Import any sub-package that re-imports handoff (no import cycles).
//
// # Performance contract
//
// Issue performs one SET NX (plus one INCR when issuance is rate limited).
// Exchange performs one Lua GET+DEL and one membership lookup bounded by
// [LookupConfig.Timeout].
package handoff
