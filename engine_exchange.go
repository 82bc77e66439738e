package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/practiceline/handoff/internal"
	"github.com/practiceline/handoff/internal/rate"
	"github.com/practiceline/handoff/internal/redact"
)

// Exchange consumes token and returns the identity it was issued for.
//
// ok is false for every "no result" outcome: malformed input, unknown or
// already used code, expired code, or a user who is no longer a member of
// the tenant. The reason is audited but never returned. err is non-nil
// only for [ErrEngineNotReady], [ErrExchangeRateLimited] and errors
// wrapping [ErrInfrastructure]; in that case no payload is returned.
//
// The code is deleted before the payload is returned, so concurrent
// exchanges of one token have exactly one winner.
//
//	Performance: 1 Lua GET+DEL, 1 membership lookup.
func (e *Engine) Exchange(ctx context.Context, token string) (Payload, bool, error) {
	return e.exchange(ctx, token, "")
}

// ExchangeForTenant is Exchange for a request that arrived on tenantID's
// host. A code issued for another tenant yields no result and is consumed.
func (e *Engine) ExchangeForTenant(ctx context.Context, token, tenantID string) (Payload, bool, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Payload{}, false, ErrInvalidIdentity
	}
	return e.exchange(ctx, token, tenantID)
}

func (e *Engine) exchange(ctx context.Context, token, expectedTenant string) (Payload, bool, error) {
	if !e.ready() {
		return Payload{}, false, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricExchangeLatency, start)

	ip := clientIPFromContext(ctx)
	if err := e.checkExchange(ctx, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricExchangeRateLimited)
			e.emitRateLimit(ctx, "exchange", "", expectedTenant)
			return Payload{}, false, ErrExchangeRateLimited
		}
		return Payload{}, false, e.exchangeFailed(ctx, "", expectedTenant, err)
	}

	if !internal.ValidHandoffToken(token) {
		e.reject(ctx, ip, ReasonMalformed, "", expectedTenant, "", "")
		return Payload{}, false, nil
	}
	fp := internal.TokenFingerprint(token)

	record, err := e.take(ctx, internal.HashHandoffToken(token))
	if err != nil {
		switch reason := auditReason(err); reason {
		case ReasonNotFound, ReasonExpired, ReasonMalformed:
			if reason == ReasonMalformed {
				e.logger.Error().Err(err).Str("token_fp", fp).Msg("handoff record unreadable")
			}
			e.reject(ctx, ip, reason, "", expectedTenant, "", fp)
			return Payload{}, false, nil
		}
		return Payload{}, false, e.exchangeFailed(ctx, "", expectedTenant, err)
	}

	// Stores check expiry with their own clock; custom stores may not.
	if e.now().UnixMilli() >= record.ExpiresAt {
		e.reject(ctx, ip, ReasonExpired, record.UserID, record.TenantID, record.Email, fp)
		return Payload{}, false, nil
	}

	if expectedTenant != "" && record.TenantID != expectedTenant {
		e.reject(ctx, ip, ReasonTenantMismatch, record.UserID, record.TenantID, record.Email, fp)
		return Payload{}, false, nil
	}

	member, err := e.isMember(ctx, record.UserID, record.TenantID)
	if err != nil {
		return Payload{}, false, e.exchangeFailed(ctx, record.UserID, record.TenantID, err)
	}
	if !member {
		e.reject(ctx, ip, ReasonMembershipRevoked, record.UserID, record.TenantID, record.Email, fp)
		return Payload{}, false, nil
	}

	e.metricInc(MetricExchangeSuccess)
	redact.Identity(e.logger.Debug(), record.UserID, record.TenantID, record.Email).
		Str("token_fp", fp).
		Msg("handoff code exchanged")
	e.emitAudit(ctx, auditEventExchanged, true, record.UserID, record.TenantID, record.Email, "", func() map[string]string {
		return map[string]string{"token_fp": fp}
	})

	return Payload{
		UserID:       record.UserID,
		TenantID:     record.TenantID,
		Email:        record.Email,
		IntendedPath: SanitizeIntendedPath(record.IntendedPath),
		IssuedAt:     time.UnixMilli(record.IssuedAt).UTC(),
	}, true, nil
}

func (e *Engine) checkExchange(ctx context.Context, ip string) error {
	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	return e.limiter.CheckExchange(cacheCtx, ip)
}

func (e *Engine) take(ctx context.Context, key string) (*CodeRecord, error) {
	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	return e.store.Take(cacheCtx, key)
}

func (e *Engine) isMember(ctx context.Context, userID, tenantID string) (bool, error) {
	lookupCtx, cancel := e.lookupContext(ctx)
	defer cancel()
	return e.membership.IsMember(lookupCtx, userID, tenantID)
}

func (e *Engine) reject(ctx context.Context, ip string, reason AuditReason, userID, tenantID, email, fp string) {
	switch reason {
	case ReasonNotFound:
		e.metricInc(MetricExchangeNotFound)
	case ReasonExpired:
		e.metricInc(MetricExchangeExpired)
	case ReasonMembershipRevoked:
		e.metricInc(MetricExchangeMembershipRevoked)
	case ReasonTenantMismatch:
		e.metricInc(MetricExchangeTenantMismatch)
	case ReasonMalformed:
		e.metricInc(MetricExchangeMalformed)
	}

	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	if err := e.limiter.RecordExchangeFailure(cacheCtx, ip); err != nil {
		e.logger.Warn().Err(err).Msg("recording failed exchange")
	}

	redact.Identity(e.logger.Info(), userID, tenantID, email).
		Str("reason", string(reason)).
		Str("token_fp", fp).
		Msg("handoff code rejected")
	e.emitAudit(ctx, auditEventRejected, false, userID, tenantID, email, reason, func() map[string]string {
		if fp == "" {
			return nil
		}
		return map[string]string{"token_fp": fp}
	})
}

func (e *Engine) exchangeFailed(ctx context.Context, userID, tenantID string, cause error) error {
	e.metricInc(MetricExchangeFailure)
	e.logger.Warn().
		Err(cause).
		Str("user_id", userID).
		Str("tenant_id", tenantID).
		Msg("handoff exchange failed")
	e.emitAudit(ctx, auditEventExchangeFailed, false, userID, tenantID, "", ReasonUnavailable, nil)
	return fmt.Errorf("%w: %v", ErrInfrastructure, cause)
}
