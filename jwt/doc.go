// Package jwt signs and verifies the session tokens used on both sides of a
// handoff: the central session presented when a handoff starts, and the
// tenant session minted after a successful exchange.
package jwt
