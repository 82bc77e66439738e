package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/practiceline/handoff/internal/audit"
)

const (
	auditEventIssued             = "handoff_issued"
	auditEventIssueFailed        = "handoff_issue_failed"
	auditEventExchanged          = "handoff_exchanged"
	auditEventRejected           = "handoff_rejected"
	auditEventExchangeFailed     = "handoff_exchange_failed"
	auditEventRevoked            = "handoff_revoked"
	auditEventDomainNotFound     = "tenant_domain_not_found"
	auditEventDomainLookupFailed = "tenant_domain_lookup_failed"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditReason classifies why an operation did not succeed. Reasons are
// only ever visible in audit events and metrics, never to the caller.
type AuditReason = audit.Reason

const (
	ReasonNotFound          = audit.ReasonNotFound
	ReasonExpired           = audit.ReasonExpired
	ReasonMembershipRevoked = audit.ReasonMembershipRevoked
	ReasonTenantMismatch    = audit.ReasonTenantMismatch
	ReasonMalformed         = audit.ReasonMalformed
	ReasonRateLimited       = audit.ReasonRateLimited
	ReasonInvalidIdentity   = audit.ReasonInvalidIdentity
	ReasonDomainNotFound    = audit.ReasonDomainNotFound
	ReasonUnavailable       = audit.ReasonUnavailable
	ReasonInternal          = audit.ReasonInternal
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	email string,
	reason AuditReason,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if requestID := requestIDFromContext(ctx); requestID != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["request_id"] = requestID
	}

	e.audit.Emit(ctx, AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Reason:    string(reason),
		Metadata:  metadata,
	})
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, userID, tenantID string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, tenantID, "", ReasonRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditReason(err error) AuditReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCodeNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrCodeExpired):
		return ReasonExpired
	case errors.Is(err, ErrCodeCorrupt):
		return ReasonMalformed
	case errors.Is(err, ErrIssueRateLimited),
		errors.Is(err, ErrExchangeRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrInvalidIdentity):
		return ReasonInvalidIdentity
	case errors.Is(err, ErrTenantDomainNotFound):
		return ReasonDomainNotFound
	case errors.Is(err, ErrInfrastructure),
		errors.Is(err, ErrCodeBackend),
		errors.Is(err, context.DeadlineExceeded):
		return ReasonUnavailable
	default:
		return ReasonInternal
	}
}
