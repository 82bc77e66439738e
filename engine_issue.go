package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/practiceline/handoff/internal"
	"github.com/practiceline/handoff/internal/rate"
	"github.com/practiceline/handoff/internal/redact"
)

// Issue generates a single-use handoff code for id and stores it for the
// configured TTL. The returned token is the only copy; the cache holds its
// SHA-256 hash.
//
// Issue returns [ErrInvalidIdentity], [ErrIssueRateLimited] or an error
// wrapping [ErrInfrastructure]. On any error the caller must not redirect.
//
//	Performance: 1 SET NX, plus 1 INCR when issuance is rate limited.
func (e *Engine) Issue(ctx context.Context, id Identity) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricIssueLatency, start)

	id, err := normalizeIdentity(id)
	if err != nil {
		e.emitAudit(ctx, auditEventIssueFailed, false, "", "", "", ReasonInvalidIdentity, nil)
		return "", err
	}
	return e.issue(ctx, id)
}

func (e *Engine) issue(ctx context.Context, id Identity) (string, error) {
	if err := e.checkIssue(ctx, id.UserID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricIssueRateLimited)
			e.emitRateLimit(ctx, "issue", id.UserID, id.TenantID)
			return "", ErrIssueRateLimited
		}
		return "", e.issueFailed(ctx, id, err)
	}

	ttl := e.config.Code.TTL
	now := e.now()
	record := &CodeRecord{
		UserID:       id.UserID,
		TenantID:     id.TenantID,
		Email:        id.Email,
		IntendedPath: id.IntendedPath,
		IssuedAt:     now.UnixMilli(),
		ExpiresAt:    now.Add(ttl).UnixMilli(),
	}

	for attempt := 0; attempt <= e.config.Code.MaxRetries; attempt++ {
		token, err := e.newToken()
		if err != nil {
			return "", e.issueFailed(ctx, id, fmt.Errorf("token generation: %v", err))
		}

		err = e.save(ctx, internal.HashHandoffToken(token), record, ttl)
		if errors.Is(err, ErrCodeCollision) {
			e.metricInc(MetricIssueCollision)
			continue
		}
		if err != nil {
			return "", e.issueFailed(ctx, id, err)
		}

		fp := internal.TokenFingerprint(token)
		e.metricInc(MetricIssueSuccess)
		redact.Identity(e.logger.Debug(), id.UserID, id.TenantID, id.Email).
			Str("token_fp", fp).
			Dur("ttl", ttl).
			Msg("handoff code issued")
		e.emitAudit(ctx, auditEventIssued, true, id.UserID, id.TenantID, id.Email, "", func() map[string]string {
			meta := map[string]string{"token_fp": fp}
			if id.IntendedPath != "" {
				meta["intended_path"] = redact.Path(id.IntendedPath)
			}
			return meta
		})
		return token, nil
	}

	return "", e.issueFailed(ctx, id, fmt.Errorf("%d consecutive key collisions", e.config.Code.MaxRetries+1))
}

func (e *Engine) checkIssue(ctx context.Context, userID string) error {
	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	return e.limiter.CheckIssue(cacheCtx, userID)
}

func (e *Engine) save(ctx context.Context, key string, record *CodeRecord, ttl time.Duration) error {
	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	return e.store.Save(cacheCtx, key, record, ttl)
}

func (e *Engine) issueFailed(ctx context.Context, id Identity, cause error) error {
	e.metricInc(MetricIssueFailure)
	redact.Identity(e.logger.Warn(), id.UserID, id.TenantID, id.Email).
		Err(cause).
		Msg("handoff issue failed")
	e.emitAudit(ctx, auditEventIssueFailed, false, id.UserID, id.TenantID, id.Email, ReasonUnavailable, nil)
	return fmt.Errorf("%w: %v", ErrInfrastructure, cause)
}

// Revoke deletes an unconsumed code, for example on central logout.
// Revoking an unknown, consumed or malformed code is not an error.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !internal.ValidHandoffToken(token) {
		return nil
	}
	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	if err := e.store.Delete(cacheCtx, internal.HashHandoffToken(token)); err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	fp := internal.TokenFingerprint(token)
	e.metricInc(MetricCodeRevoked)
	e.emitAudit(ctx, auditEventRevoked, true, "", "", "", "", func() map[string]string {
		return map[string]string{"token_fp": fp}
	})
	return nil
}

// Pending reports whether token is still waiting to be exchanged, without
// consuming it. It requires a store implementing [CodeInspector].
func (e *Engine) Pending(ctx context.Context, token string) (PendingCode, bool, error) {
	if !e.ready() {
		return PendingCode{}, false, ErrEngineNotReady
	}
	inspector, ok := e.store.(CodeInspector)
	if !ok {
		return PendingCode{}, false, ErrInspectUnsupported
	}
	if !internal.ValidHandoffToken(token) {
		return PendingCode{}, false, nil
	}

	cacheCtx, cancel := e.cacheContext(ctx)
	defer cancel()
	record, err := inspector.Get(cacheCtx, internal.HashHandoffToken(token))
	switch {
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeCorrupt):
		return PendingCode{}, false, nil
	case err != nil:
		return PendingCode{}, false, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	return PendingCode{
		Fingerprint: internal.TokenFingerprint(token),
		UserID:      record.UserID,
		TenantID:    record.TenantID,
		IssuedAt:    time.UnixMilli(record.IssuedAt).UTC(),
		ExpiresAt:   time.UnixMilli(record.ExpiresAt).UTC(),
	}, true, nil
}
