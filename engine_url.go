package handoff

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// BuildHandoffURL returns "<scheme>://<tenant host><handoff path>?code=<token>"
// for tenantID. The token is URL-encoded.
//
// It returns [ErrTenantDomainNotFound] when the tenant has no domain and an
// error wrapping [ErrInfrastructure] when the lookup fails.
func (e *Engine) BuildHandoffURL(ctx context.Context, token, tenantID string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", ErrInvalidIdentity
	}
	if token == "" {
		return "", ErrInvalidOrExpiredCode
	}

	host, err := e.tenantHost(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return e.handoffURL(host, token), nil
}

// Start runs the whole central-side flow: resolve the tenant domain, issue
// a code and build the URL. The domain is resolved first so a missing
// domain never leaves an orphan code in the cache.
func (e *Engine) Start(ctx context.Context, id Identity) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	id, err := normalizeIdentity(id)
	if err != nil {
		e.emitAudit(ctx, auditEventIssueFailed, false, "", "", "", ReasonInvalidIdentity, nil)
		return "", err
	}

	host, err := e.tenantHost(ctx, id.TenantID)
	if err != nil {
		return "", err
	}

	token, err := e.Issue(ctx, id)
	if err != nil {
		return "", err
	}
	return e.handoffURL(host, token), nil
}

func (e *Engine) handoffURL(host, token string) string {
	u := url.URL{
		Scheme:   e.config.URL.Scheme,
		Host:     host,
		Path:     e.config.URL.HandoffPath,
		RawQuery: url.Values{CodeParam: []string{token}}.Encode(),
	}
	return u.String()
}

func (e *Engine) tenantHost(ctx context.Context, tenantID string) (string, error) {
	lookupCtx, cancel := e.lookupContext(ctx)
	defer cancel()

	domain, err := e.domains.ResolveDomain(lookupCtx, tenantID)
	if err != nil && !errors.Is(err, ErrTenantDomainNotFound) {
		e.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("tenant domain lookup failed")
		e.emitAudit(ctx, auditEventDomainLookupFailed, false, "", tenantID, "", ReasonUnavailable, nil)
		return "", fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	host, ok := "", false
	if err == nil {
		host, ok = e.expandHost(domain)
	}
	if !ok {
		e.metricInc(MetricDomainNotFound)
		e.logger.Error().Str("tenant_id", tenantID).Str("domain", domain).Msg("tenant domain not found")
		e.emitAudit(ctx, auditEventDomainNotFound, false, "", tenantID, "", ReasonDomainNotFound, nil)
		return "", ErrTenantDomainNotFound
	}
	return host, nil
}

// expandHost turns a bare label into "<label>.<base domain>" and rejects
// anything that is not a plain host[:port].
func (e *Engine) expandHost(domain string) (string, bool) {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if host == "" || strings.ContainsAny(host, "/\\?#@ \t") {
		return "", false
	}

	base := strings.TrimSuffix(strings.ToLower(e.config.URL.BaseDomain), ".")
	if base != "" && !strings.Contains(host, ".") && !strings.Contains(host, ":") {
		host = host + "." + base
	}

	u, err := url.Parse("//" + host)
	if err != nil || u.Host != host || u.Hostname() == "" {
		return "", false
	}
	return host, true
}
