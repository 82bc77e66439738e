package audit

// Reason classifies why a handoff operation did not succeed.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonExpired           Reason = "expired"
	ReasonMembershipRevoked Reason = "membership_revoked"
	ReasonTenantMismatch    Reason = "tenant_mismatch"
	ReasonMalformed         Reason = "malformed"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonInvalidIdentity   Reason = "invalid_identity"
	ReasonDomainNotFound    Reason = "domain_not_found"
	ReasonUnavailable       Reason = "backend_unavailable"
	ReasonInternal          Reason = "internal_error"
)

// Operational reports whether r points at the deployment rather than at
// the user, which is what sinks escalate.
func (r Reason) Operational() bool {
	switch r {
	case ReasonUnavailable, ReasonDomainNotFound, ReasonInternal:
		return true
	default:
		return false
	}
}
