package handoff

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/practiceline/handoff/internal"
	"github.com/practiceline/handoff/internal/stores"
)

func TestIssueExchangeRoundTrip(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1", Email: "u1@clinic.org"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !internal.ValidHandoffToken(token) {
		t.Fatalf("unexpected token shape %q", token)
	}

	payload, ok, err := engine.Exchange(ctx, token)
	if err != nil || !ok {
		t.Fatalf("expected payload, got ok=%v err=%v", ok, err)
	}
	if payload.UserID != "U1" || payload.TenantID != "T1" || payload.Email != "u1@clinic.org" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.IssuedAt.IsZero() {
		t.Fatal("expected IssuedAt to be set")
	}
}

func TestExchangeIsSingleUse(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, ok, err := engine.Exchange(ctx, token); err != nil || !ok {
		t.Fatalf("first exchange: ok=%v err=%v", ok, err)
	}
	if _, ok, err := engine.Exchange(ctx, token); err != nil || ok {
		t.Fatalf("second exchange must yield no result, got ok=%v err=%v", ok, err)
	}
}

func TestExchangeAfterTTLYieldsNoResult(t *testing.T) {
	engine, mr, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.FastForward(61 * time.Second)

	if _, ok, err := engine.Exchange(ctx, token); err != nil || ok {
		t.Fatalf("expected no result after TTL, got ok=%v err=%v", ok, err)
	}
}

func TestExchangeAtExpiryBoundary(t *testing.T) {
	clock := newTestClock()
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	engine, _ := newMemoryEngine(t, cfg, clock, nil)
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	clock.Advance(59 * time.Second)
	if _, ok, _ := engine.Exchange(ctx, token); !ok {
		t.Fatal("expected success just before expiry")
	}

	token, err = engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	clock.Advance(60 * time.Second)
	if _, ok, err := engine.Exchange(ctx, token); ok || err != nil {
		t.Fatalf("expected no result at expiry, got ok=%v err=%v", ok, err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricExchangeExpired] != 1 || snap.Counters[MetricExchangeNotFound] != 0 {
		t.Fatalf("expected the lapsed code to count as expired, got expired=%d not_found=%d",
			snap.Counters[MetricExchangeExpired], snap.Counters[MetricExchangeNotFound])
	}
}

func TestExchangeMembershipRevoked(t *testing.T) {
	engine, _, dir := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	dir.removeMember("U1", "T1")

	if _, ok, err := engine.Exchange(ctx, token); err != nil || ok {
		t.Fatalf("expected no result, got ok=%v err=%v", ok, err)
	}

	dir.addMember("U1", "T1")
	if _, ok, _ := engine.Exchange(ctx, token); ok {
		t.Fatal("revoked code must stay consumed after membership is restored")
	}
}

func TestExchangeMembershipLookupFailureFailsClosed(t *testing.T) {
	engine, _, dir := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	dir.memberErr = errors.New("connection refused")

	payload, ok, err := engine.Exchange(ctx, token)
	if !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected ErrInfrastructure, got %v", err)
	}
	if ok || payload.UserID != "" {
		t.Fatalf("infrastructure failure must not return a payload: %+v", payload)
	}
}

func TestExchangeMembershipLookupIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Lookup.Timeout = 20 * time.Millisecond

	clock := newTestClock()
	store := NewMemoryCodeStoreWithClock(clock.Now)
	engine, err := New().
		WithConfig(cfg).
		WithCodeStore(store).
		WithClock(clock.Now).
		WithMembership(MembershipFunc(func(ctx context.Context, _, _ string) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})).
		WithDomains(DomainFunc(func(context.Context, string) (string, error) {
			return "clinic1", nil
		})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	token, err := engine.Issue(context.Background(), Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	start := time.Now()
	_, ok, err := engine.Exchange(context.Background(), token)
	if !errors.Is(err, ErrInfrastructure) || ok {
		t.Fatalf("expected ErrInfrastructure, got ok=%v err=%v", ok, err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("membership lookup was not bounded by the lookup timeout")
	}
}

func TestExchangeMalformedNeverTouchesStore(t *testing.T) {
	clock := newTestClock()
	spy := &spyStore{CodeStore: NewMemoryCodeStoreWithClock(clock.Now)}
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	engine, _ := newMemoryEngine(t, cfg, clock, spy)

	inputs := []string{
		"",
		"abc",
		strings.Repeat("g", 64),
		strings.Repeat("A", 64),
		strings.Repeat("a", 63),
		strings.Repeat("a", 65),
		strings.Repeat("a", 60) + "%20a",
	}
	for _, in := range inputs {
		if _, ok, err := engine.Exchange(context.Background(), in); ok || err != nil {
			t.Fatalf("Exchange(%q): ok=%v err=%v", in, ok, err)
		}
	}

	if got := spy.takes.Load(); got != 0 {
		t.Fatalf("malformed tokens reached the store %d times", got)
	}
	if got := engine.MetricsSnapshot().Counters[MetricExchangeMalformed]; got != uint64(len(inputs)) {
		t.Fatalf("expected %d malformed, got %d", len(inputs), got)
	}
}

func TestExchangeForTenantMismatchConsumesCode(t *testing.T) {
	engine, _, dir := newRedisEngine(t, testConfig())
	dir.addMember("U1", "T2")
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, ok, err := engine.ExchangeForTenant(ctx, token, "T2"); ok || err != nil {
		t.Fatalf("expected no result on the wrong tenant, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := engine.ExchangeForTenant(ctx, token, "T1"); ok {
		t.Fatal("code must be consumed by the mismatched attempt")
	}
}

func TestExchangeForTenantMatch(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	payload, ok, err := engine.ExchangeForTenant(ctx, token, "T1")
	if err != nil || !ok || payload.TenantID != "T1" {
		t.Fatalf("expected payload for T1, got %+v ok=%v err=%v", payload, ok, err)
	}

	if _, _, err := engine.ExchangeForTenant(ctx, token, "  "); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity for blank tenant, got %v", err)
	}
}

func TestConcurrentExchangeHasOneWinner(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const workers = 64
	var winners atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			if _, ok, err := engine.Exchange(ctx, token); ok && err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestIssueRejectsInvalidIdentity(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())

	tests := []struct {
		name string
		id   Identity
	}{
		{name: "blank user", id: Identity{UserID: "  ", TenantID: "T1"}},
		{name: "blank tenant", id: Identity{UserID: "U1"}},
		{name: "oversized user", id: Identity{UserID: strings.Repeat("u", 256), TenantID: "T1"}},
		{name: "oversized tenant", id: Identity{UserID: "U1", TenantID: strings.Repeat("t", 256)}},
		{name: "oversized email", id: Identity{UserID: "U1", TenantID: "T1", Email: strings.Repeat("e", 321)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Issue(context.Background(), tt.id); !errors.Is(err, ErrInvalidIdentity) {
				t.Fatalf("expected ErrInvalidIdentity, got %v", err)
			}
		})
	}
}

func TestIssueKeepsSafeIntendedPathOnly(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1", IntendedPath: "/patients/42?tab=notes"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	payload, ok, _ := engine.Exchange(ctx, token)
	if !ok || payload.IntendedPath != "/patients/42?tab=notes" {
		t.Fatalf("expected intended path to survive, got %+v", payload)
	}

	token, err = engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1", IntendedPath: "https://evil.example/steal"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	payload, ok, _ = engine.Exchange(ctx, token)
	if !ok || payload.IntendedPath != "" {
		t.Fatalf("expected absolute URL to be dropped, got %+v", payload)
	}
}

func TestIssueStoreUnavailable(t *testing.T) {
	engine, mr, _ := newRedisEngine(t, testConfig())
	mr.Close()

	token, err := engine.Issue(context.Background(), Identity{UserID: "U1", TenantID: "T1"})
	if !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected ErrInfrastructure, got %v", err)
	}
	if token != "" {
		t.Fatal("no token may be returned on failure")
	}
}

func TestExchangeStoreUnavailable(t *testing.T) {
	engine, mr, _ := newRedisEngine(t, testConfig())
	token, err := engine.Issue(context.Background(), Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.Close()

	if _, ok, err := engine.Exchange(context.Background(), token); ok || !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected ErrInfrastructure, got ok=%v err=%v", ok, err)
	}
}

func TestIssueCollisionRegeneratesToken(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryCodeStoreWithClock(clock.Now)
	dir := newFakeDirectory()
	dir.addMember("U1", "T1")

	first := strings.Repeat("a", 64)
	second := strings.Repeat("b", 64)
	var calls atomic.Int64
	cfg := testConfig()
	cfg.Metrics.Enabled = true

	engine, err := New().
		WithConfig(cfg).
		WithCodeStore(store).
		WithDirectory(dir).
		WithClock(clock.Now).
		withTokenSource(func() (string, error) {
			if calls.Add(1) <= 2 {
				return first, nil
			}
			return second, nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if tok, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); err != nil || tok != first {
		t.Fatalf("first issue: %q %v", tok, err)
	}
	if tok, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); err != nil || tok != second {
		t.Fatalf("second issue should regenerate: %q %v", tok, err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricIssueCollision]; got != 1 {
		t.Fatalf("expected 1 collision, got %d", got)
	}
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	clock := newTestClock()
	fixed := strings.Repeat("c", 64)
	dir := newFakeDirectory()

	engine, err := New().
		WithConfig(testConfig()).
		WithCodeStore(NewMemoryCodeStoreWithClock(clock.Now)).
		WithDirectory(dir).
		WithClock(clock.Now).
		withTokenSource(func() (string, error) { return fixed, nil }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if _, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected ErrInfrastructure after repeated collisions, got %v", err)
	}
}

func TestIssueRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxIssuesPerUser = 2
	cfg.RateLimit.IssueWindow = time.Minute
	engine, _, _ := newRedisEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); err != nil {
			t.Fatalf("issue %d failed: %v", i, err)
		}
	}
	if _, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); !errors.Is(err, ErrIssueRateLimited) {
		t.Fatalf("expected ErrIssueRateLimited, got %v", err)
	}
}

func TestExchangeFailureThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxExchangeFailures = 2
	cfg.RateLimit.ExchangeFailureWindow = time.Minute
	engine, _, _ := newRedisEngine(t, cfg)

	good, err := engine.Issue(context.Background(), Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	attacker := WithClientIP(context.Background(), "198.51.100.7")
	for i := 0; i < 2; i++ {
		if _, ok, err := engine.Exchange(attacker, strings.Repeat("d", 64)); ok || err != nil {
			t.Fatalf("guess %d: ok=%v err=%v", i, ok, err)
		}
	}
	if _, _, err := engine.Exchange(attacker, good); !errors.Is(err, ErrExchangeRateLimited) {
		t.Fatalf("expected ErrExchangeRateLimited, got %v", err)
	}

	other := WithClientIP(context.Background(), "203.0.113.9")
	if _, ok, err := engine.Exchange(other, good); !ok || err != nil {
		t.Fatalf("throttled attempt must not consume the code: ok=%v err=%v", ok, err)
	}
}

func TestBuildHandoffURL(t *testing.T) {
	engine, _, dir := newRedisEngine(t, testConfig())
	dir.setDomain("T2", "portal.northside-clinic.org")
	ctx := context.Background()

	token := strings.Repeat("e", 64)
	got, err := engine.BuildHandoffURL(ctx, token, "T1")
	if err != nil {
		t.Fatalf("BuildHandoffURL failed: %v", err)
	}
	if want := "https://clinic1.example.com/sso/start?code=" + token; got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	got, err = engine.BuildHandoffURL(ctx, "a b&c/d=", "T2")
	if err != nil {
		t.Fatalf("BuildHandoffURL failed: %v", err)
	}
	if !strings.HasPrefix(got, "https://portal.northside-clinic.org/sso/start?") {
		t.Fatalf("full host must be used as-is, got %q", got)
	}
	if !strings.Contains(got, "code=a+b%26c%2Fd%3D") {
		t.Fatalf("token not URL-encoded in %q", got)
	}
	u, err := url.Parse(got)
	if err != nil || u.Query().Get(CodeParam) != "a b&c/d=" {
		t.Fatalf("token does not round-trip through the URL: %v", err)
	}
}

func TestBuildHandoffURLDomainErrors(t *testing.T) {
	engine, _, dir := newRedisEngine(t, testConfig())
	dir.setDomain("T3", "evil.example/phish")
	ctx := context.Background()
	token := strings.Repeat("f", 64)

	if _, err := engine.BuildHandoffURL(ctx, token, "missing"); !errors.Is(err, ErrTenantDomainNotFound) {
		t.Fatalf("expected ErrTenantDomainNotFound, got %v", err)
	}
	if _, err := engine.BuildHandoffURL(ctx, token, "T3"); !errors.Is(err, ErrTenantDomainNotFound) {
		t.Fatalf("expected invalid host to be treated as not found, got %v", err)
	}

	dir.domainErr = errors.New("db down")
	if _, err := engine.BuildHandoffURL(ctx, token, "T1"); !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected ErrInfrastructure, got %v", err)
	}
}

func TestStartResolvesDomainBeforeIssuing(t *testing.T) {
	clock := newTestClock()
	store := stores.NewMemoryHandoffStore().WithClock(clock.Now)
	engine, _ := newMemoryEngine(t, testConfig(), clock, store)
	ctx := context.Background()

	if _, err := engine.Start(ctx, Identity{UserID: "U1", TenantID: "T9"}); !errors.Is(err, ErrTenantDomainNotFound) {
		t.Fatalf("expected ErrTenantDomainNotFound, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("no code may be issued when the domain is missing")
	}

	link, err := engine.Start(ctx, Identity{UserID: "U1", TenantID: "T1", IntendedPath: "/schedule"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad URL %q: %v", link, err)
	}
	if u.Host != "clinic1.example.com" || u.Path != "/sso/start" {
		t.Fatalf("unexpected URL %q", link)
	}

	payload, ok, err := engine.ExchangeForTenant(ctx, u.Query().Get(CodeParam), "T1")
	if err != nil || !ok || payload.IntendedPath != "/schedule" {
		t.Fatalf("exchange of started code: %+v ok=%v err=%v", payload, ok, err)
	}
}

func TestRevoke(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := engine.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := engine.Revoke(ctx, token); err != nil {
		t.Fatalf("second Revoke must be a no-op: %v", err)
	}
	if err := engine.Revoke(ctx, "not-a-token"); err != nil {
		t.Fatalf("malformed Revoke must be a no-op: %v", err)
	}
	if _, ok, _ := engine.Exchange(ctx, token); ok {
		t.Fatal("revoked code must not exchange")
	}
}

func TestPending(t *testing.T) {
	engine, _, _ := newRedisEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	info, ok, err := engine.Pending(ctx, token)
	if err != nil || !ok {
		t.Fatalf("expected pending code, got ok=%v err=%v", ok, err)
	}
	if info.Fingerprint != internal.TokenFingerprint(token) || info.UserID != "U1" {
		t.Fatalf("unexpected pending info %+v", info)
	}
	if got := info.ExpiresAt.Sub(info.IssuedAt); got != DefaultCodeTTL {
		t.Fatalf("expected %s lifetime, got %s", DefaultCodeTTL, got)
	}

	if _, ok, _ := engine.Exchange(ctx, token); !ok {
		t.Fatal("Pending must not consume the code")
	}
	if _, ok, err := engine.Pending(ctx, token); ok || err != nil {
		t.Fatalf("consumed code must not be pending, got ok=%v err=%v", ok, err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var engine *Engine
	ctx := context.Background()

	if _, err := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := engine.Exchange(ctx, strings.Repeat("a", 64)); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Exchange: %v", err)
	}
	if _, err := engine.BuildHandoffURL(ctx, "t", "T1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("BuildHandoffURL: %v", err)
	}
	engine.Close()
	if engine.AuditDropped() != 0 {
		t.Fatal("nil engine must report zero drops")
	}
}

func TestExchangeOutcomeMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	engine, _, dir := newRedisEngine(t, cfg)
	dir.addMember("U2", "T1")
	ctx := context.Background()

	ok1, _ := engine.Issue(ctx, Identity{UserID: "U1", TenantID: "T1"})
	revoked, _ := engine.Issue(ctx, Identity{UserID: "U2", TenantID: "T1"})
	dir.removeMember("U2", "T1")

	engine.Exchange(ctx, ok1)
	engine.Exchange(ctx, ok1)
	engine.Exchange(ctx, revoked)
	engine.Exchange(ctx, "bogus")

	snap := engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricIssueSuccess:              2,
		MetricExchangeSuccess:           1,
		MetricExchangeNotFound:          1,
		MetricExchangeMembershipRevoked: 1,
		MetricExchangeMalformed:         1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}

	var observed uint64
	for _, v := range snap.Histograms[MetricExchangeLatency] {
		observed += v
	}
	if observed != 4 {
		t.Fatalf("expected 4 exchange latency observations, got %d", observed)
	}
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	_, rdb := newTestRedis(t)
	dir := newFakeDirectory()

	if _, err := New().WithRedis(rdb).WithDomains(dir).Build(); err == nil {
		t.Fatal("expected error without membership checker")
	}
	if _, err := New().WithRedis(rdb).WithMembership(dir).Build(); err == nil {
		t.Fatal("expected error without domain resolver")
	}
	if _, err := New().WithDirectory(dir).Build(); err == nil {
		t.Fatal("expected error without redis or code store")
	}

	b := New().WithRedis(rdb).WithDirectory(dir)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}
