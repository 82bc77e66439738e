//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/practiceline/handoff"
)

// cmdCounter is a go-redis Hook that counts Redis commands.
type cmdCounter struct {
	commands atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func newCountedClient(t *testing.T) (*redis.Client, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close(); mr.Close() })

	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// Connection setup may issue commands of its own.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.commands.Store(0)
	return rdb, counter
}

// measure returns the number of Redis commands fn issued.
func measure(counter *cmdCounter, fn func()) int64 {
	counter.commands.Store(0)
	fn()
	return counter.commands.Load()
}

func TestRedisBudgetWithoutLimits(t *testing.T) {
	rdb, counter := newCountedClient(t)
	cfg := integrationConfig()
	cfg.RateLimit = handoff.RateLimitConfig{}
	engine, _ := newEngine(t, rdb, cfg)
	ctx := context.Background()

	// Load the take script so later exchanges cost one EVALSHA.
	warm, _ := engine.Issue(ctx, handoff.Identity{UserID: "U1", TenantID: "T1"})
	engine.Exchange(ctx, warm)

	var token string
	if n := measure(counter, func() {
		token, _ = engine.Issue(ctx, handoff.Identity{UserID: "U1", TenantID: "T1"})
	}); n != 1 {
		t.Fatalf("expected issue to cost 1 command, got %d", n)
	}
	if n := measure(counter, func() { engine.Exchange(ctx, token) }); n != 1 {
		t.Fatalf("expected exchange to cost 1 command, got %d", n)
	}
	if n := measure(counter, func() { engine.Exchange(ctx, "not-a-token") }); n != 0 {
		t.Fatalf("expected malformed exchange to cost no commands, got %d", n)
	}
}

func TestRedisBudgetWithLimits(t *testing.T) {
	rdb, counter := newCountedClient(t)
	engine, _ := newEngine(t, rdb, integrationConfig())
	ctx := handoff.WithClientIP(context.Background(), "198.51.100.7")

	warm, _ := engine.Issue(ctx, handoff.Identity{UserID: "U1", TenantID: "T1"})
	engine.Exchange(ctx, warm)

	var token string
	// INCR on the per-user window plus SET NX.
	if n := measure(counter, func() {
		token, _ = engine.Issue(ctx, handoff.Identity{UserID: "U1", TenantID: "T1"})
	}); n != 2 {
		t.Fatalf("expected issue to cost 2 commands, got %d", n)
	}
	// GET on the failure counter plus EVALSHA.
	if n := measure(counter, func() { engine.Exchange(ctx, token) }); n != 2 {
		t.Fatalf("expected exchange to cost 2 commands, got %d", n)
	}
}
