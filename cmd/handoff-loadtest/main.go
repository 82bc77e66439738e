// Command handoff-loadtest issues handoff codes and races concurrent
// exchanges of each one, verifying that every code has exactly one winner.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/practiceline/handoff"
)

type options struct {
	codes       int
	contenders  int
	concurrency int
	redisAddr   string
	prefix      string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "handoff-loadtest",
		Short:        "Stress the handoff exchange path for double spends",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.codes <= 0 || opts.contenders <= 0 || opts.concurrency <= 0 {
				return fmt.Errorf("codes, contenders and concurrency must be > 0")
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.codes, "codes", 10000, "number of codes to issue")
	cmd.Flags().IntVar(&opts.contenders, "contenders", 8, "concurrent exchanges per code")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent issue workers")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "sso-lt", "code key prefix")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := handoff.DefaultConfig()
	cfg.Code.KeyPrefix = opts.prefix
	cfg.Code.TTL = handoff.MaxCodeTTL
	cfg.URL.BaseDomain = "loadtest.invalid"
	cfg.RateLimit = handoff.RateLimitConfig{}
	// Saturated pools queue far longer than a live redirect would.
	cfg.Lookup.CacheTimeout = 2 * time.Second
	cfg.Audit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := handoff.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMembership(handoff.MembershipFunc(func(context.Context, string, string) (bool, error) { return true, nil })).
		WithDomains(handoff.DomainFunc(func(context.Context, string) (string, error) { return "tenant", nil })).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Printf("issuing %d codes...\n", opts.codes)
	tokens, issueStats := runIssuePhase(ctx, engine, opts.codes, opts.concurrency)
	if len(tokens) != opts.codes {
		return fmt.Errorf("issued %d of %d codes", len(tokens), opts.codes)
	}

	fmt.Printf("racing %d exchanges per code...\n", opts.contenders)
	violations, exchangeStats := runExchangePhase(ctx, engine, tokens, opts.contenders)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("exchange", exchangeStats)

	snapshot := engine.MetricsSnapshot()
	fmt.Printf("exchange_success=%d exchange_not_found=%d\n",
		snapshot.Counters[handoff.MetricExchangeSuccess],
		snapshot.Counters[handoff.MetricExchangeNotFound])

	if violations > 0 {
		return fmt.Errorf("%d codes did not have exactly one winner", violations)
	}
	fmt.Println("every code had exactly one winner")
	return nil
}

func runIssuePhase(ctx context.Context, engine *handoff.Engine, codes, concurrency int) ([]string, phaseStats) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		tokens    = make([]string, codes)
		latencies = make([]time.Duration, 0, codes)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= codes {
					return
				}
				t0 := time.Now()
				token, err := engine.Issue(ctx, handoff.Identity{
					UserID:   fmt.Sprintf("user-%d", i),
					TenantID: fmt.Sprintf("tenant-%d", i%64),
				})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				tokens[i] = token
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	issued := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			issued = append(issued, t)
		}
	}
	return issued, computeStats(time.Since(start), latencies, failures)
}

// runExchangePhase starts contenders goroutines per token behind a shared
// barrier and counts the winners of each.
func runExchangePhase(ctx context.Context, engine *handoff.Engine, tokens []string, contenders int) (int, phaseStats) {
	var (
		wg        sync.WaitGroup
		failures  int64
		winners   = make([]int32, len(tokens))
		latencies = make([]time.Duration, 0, len(tokens)*contenders)
		mu        sync.Mutex
	)

	start := time.Now()
	for i, token := range tokens {
		gate := make(chan struct{})
		for c := 0; c < contenders; c++ {
			wg.Add(1)
			go func(i int, token string) {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				_, ok, err := engine.Exchange(ctx, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				if ok {
					atomic.AddInt32(&winners[i], 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}(i, token)
		}
		close(gate)
		wg.Wait()
	}

	violations := 0
	for _, n := range winners {
		if n != 1 {
			violations++
		}
	}
	return violations, computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
