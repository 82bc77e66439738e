// Package internal holds helpers private to the handoff module.
//
// # Sub-packages
//
//   - audit: buffered event dispatch and sinks
//   - rate: Redis fixed-window limits for issuance and failed exchanges
//   - redact: identifier masking for logs
//   - stores: Redis and in-memory code stores
package internal
