package handoff

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

type fakeDirectory struct {
	mu      sync.Mutex
	members map[string]bool
	domains map[string]string

	memberErr error
	domainErr error

	memberCalls atomic.Int64
	domainCalls atomic.Int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members: map[string]bool{},
		domains: map[string]string{},
	}
}

func (d *fakeDirectory) addMember(userID, tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[userID+"|"+tenantID] = true
}

func (d *fakeDirectory) removeMember(userID, tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, userID+"|"+tenantID)
}

func (d *fakeDirectory) setDomain(tenantID, domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.domains[tenantID] = domain
}

func (d *fakeDirectory) IsMember(_ context.Context, userID, tenantID string) (bool, error) {
	d.memberCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memberErr != nil {
		return false, d.memberErr
	}
	return d.members[userID+"|"+tenantID], nil
}

func (d *fakeDirectory) ResolveDomain(_ context.Context, tenantID string) (string, error) {
	d.domainCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.domainErr != nil {
		return "", d.domainErr
	}
	domain, ok := d.domains[tenantID]
	if !ok {
		return "", ErrTenantDomainNotFound
	}
	return domain, nil
}

// spyStore counts calls into a wrapped CodeStore.
type spyStore struct {
	CodeStore
	saves   atomic.Int64
	takes   atomic.Int64
	deletes atomic.Int64
}

func (s *spyStore) Save(ctx context.Context, key string, record *CodeRecord, ttl time.Duration) error {
	s.saves.Add(1)
	return s.CodeStore.Save(ctx, key, record, ttl)
}

func (s *spyStore) Take(ctx context.Context, key string) (*CodeRecord, error) {
	s.takes.Add(1)
	return s.CodeStore.Take(ctx, key)
}

func (s *spyStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	return s.CodeStore.Delete(ctx, key)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL.BaseDomain = "example.com"
	cfg.Audit.Enabled = false
	cfg.RateLimit = RateLimitConfig{}
	return cfg
}

// newRedisEngine builds an engine over miniredis with U1 a member of T1
// and T1 served from clinic1.example.com.
func newRedisEngine(t *testing.T, cfg Config) (*Engine, *miniredis.Miniredis, *fakeDirectory) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	dir := newFakeDirectory()
	dir.addMember("U1", "T1")
	dir.setDomain("T1", "clinic1")

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr, dir
}

func newMemoryEngine(t *testing.T, cfg Config, clock *testClock, store CodeStore) (*Engine, *fakeDirectory) {
	t.Helper()

	dir := newFakeDirectory()
	dir.addMember("U1", "T1")
	dir.setDomain("T1", "clinic1")

	if store == nil {
		store = NewMemoryCodeStoreWithClock(clock.Now)
	}
	engine, err := New().
		WithConfig(cfg).
		WithCodeStore(store).
		WithDirectory(dir).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, dir
}
