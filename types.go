package handoff

import (
	"context"
	"time"

	"github.com/practiceline/handoff/internal/stores"
)

// Identity is what the central application knows about the user when it
// starts a handoff.
type Identity struct {
	UserID   string
	TenantID string
	Email    string
	// IntendedPath is an optional same-origin path on the tenant host.
	// Anything that is not a plain relative path is dropped at issue time.
	IntendedPath string
}

// Payload is returned by a successful exchange.
type Payload struct {
	UserID       string
	TenantID     string
	Email        string
	IntendedPath string
	IssuedAt     time.Time
}

// CodeRecord is the value stored under a hashed handoff code.
// IssuedAt and ExpiresAt are unix milliseconds.
type CodeRecord = stores.HandoffRecord

// CodeStore is the short-lived cache shared by issuer and exchanger. Keys
// are SHA-256 hashes of the token, never the token itself.
//
// Save must not overwrite an existing key ([ErrCodeCollision]). Take must
// read and delete in one atomic step and report [ErrCodeNotFound] or
// [ErrCodeExpired] when there is nothing to hand out. Infrastructure
// failures wrap [ErrCodeBackend].
type CodeStore interface {
	Save(ctx context.Context, key string, record *CodeRecord, ttl time.Duration) error
	Take(ctx context.Context, key string) (*CodeRecord, error)
	Delete(ctx context.Context, key string) error
}

// CodeInspector is implemented by stores that support a non-consuming read.
type CodeInspector interface {
	Get(ctx context.Context, key string) (*CodeRecord, error)
}

// MembershipChecker reports whether a user currently belongs to a tenant.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, tenantID string) (bool, error)
}

// DomainResolver returns the host of a tenant, either a bare label such as
// "clinic1" or a full host name. It returns [ErrTenantDomainNotFound] when
// the tenant has no domain.
type DomainResolver interface {
	ResolveDomain(ctx context.Context, tenantID string) (string, error)
}

// MembershipFunc adapts a function to [MembershipChecker].
type MembershipFunc func(ctx context.Context, userID, tenantID string) (bool, error)

func (f MembershipFunc) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	return f(ctx, userID, tenantID)
}

// DomainFunc adapts a function to [DomainResolver].
type DomainFunc func(ctx context.Context, tenantID string) (string, error)

func (f DomainFunc) ResolveDomain(ctx context.Context, tenantID string) (string, error) {
	return f(ctx, tenantID)
}

// PendingCode describes an unconsumed code for operational tooling.
type PendingCode struct {
	Fingerprint string
	UserID      string
	TenantID    string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}
