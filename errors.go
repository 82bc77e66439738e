package handoff

import (
	"errors"

	"github.com/practiceline/handoff/internal/stores"
)

var (
	// ErrInfrastructure reports that the code cache, rate limiter or a
	// directory lookup was unavailable. It is always wrapped with the cause.
	ErrInfrastructure = errors.New("handoff infrastructure unavailable")
	// ErrInvalidOrExpiredCode is what HTTP layers report for an exchange
	// that produced no result. The engine itself returns ok=false instead.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired handoff code")
	// ErrTenantDomainNotFound is returned when a tenant has no registered domain.
	ErrTenantDomainNotFound = errors.New("tenant domain not found")
	// ErrInvalidIdentity is returned by Issue for a blank or oversized user or tenant ID.
	ErrInvalidIdentity = errors.New("invalid handoff identity")
	// ErrIssueRateLimited is returned when a user exceeds the issuance budget.
	ErrIssueRateLimited = errors.New("handoff issuance rate limited")
	// ErrExchangeRateLimited is returned when a client IP exceeds the failed exchange budget.
	ErrExchangeRateLimited = errors.New("handoff exchange rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInspectUnsupported is returned by Pending when the CodeStore has no
	// non-consuming read.
	ErrInspectUnsupported = errors.New("code store does not support inspection")
)

// Errors a CodeStore implementation reports. Custom stores must return
// these (optionally wrapped) so the engine can classify outcomes.
var (
	ErrCodeNotFound  = stores.ErrHandoffNotFound
	ErrCodeExpired   = stores.ErrHandoffExpired
	ErrCodeCollision = stores.ErrHandoffCollision
	ErrCodeCorrupt   = stores.ErrHandoffCorrupt
	ErrCodeBackend   = stores.ErrHandoffBackend
)
