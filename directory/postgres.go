package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practiceline/handoff"
)

const (
	membershipQuery = `SELECT EXISTS (SELECT 1 FROM tenant_user WHERE user_id = $1 AND tenant_id = $2)`
	// Primary domain first, then the oldest.
	domainQuery = `SELECT domain FROM domains WHERE tenant_id = $1 ORDER BY is_primary DESC, created_at ASC LIMIT 1`
)

// Querier is the subset of pgxpool.Pool used by Postgres.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements handoff.MembershipChecker and handoff.DomainResolver
// over the central database.
type Postgres struct {
	db Querier
}

func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	var ok bool
	if err := p.db.QueryRow(ctx, membershipQuery, userID, tenantID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return ok, nil
}

// ResolveDomain returns the tenant's primary domain, or
// handoff.ErrTenantDomainNotFound when it has none.
func (p *Postgres) ResolveDomain(ctx context.Context, tenantID string) (string, error) {
	var domain string
	err := p.db.QueryRow(ctx, domainQuery, tenantID).Scan(&domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", handoff.ErrTenantDomainNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query domain: %w", err)
	}
	return domain, nil
}

// NewPool opens a pgx pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
