package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/practiceline/handoff"
	"github.com/practiceline/handoff/config"
	"github.com/practiceline/handoff/directory"
	"github.com/practiceline/handoff/httpapi"
)

// runtimeOptions are the command-line overrides shared by every command
// that builds an engine.
type runtimeOptions struct {
	devRedis   bool
	devMembers []string
	devDomains []string
	auditLog   string
}

type services struct {
	engine *handoff.Engine
	redis  redis.UniversalClient
	health map[string]httpapi.HealthCheck
	close  []func()
}

func (r *services) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.close) - 1; i >= 0; i-- {
		r.close[i]()
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}
	return logger
}

func buildRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions, logger zerolog.Logger) (*services, error) {
	rt := &services{health: map[string]httpapi.HealthCheck{}}

	// -------- REDIS --------
	switch {
	case opts.devRedis || (cfg.RedisURL == "" && cfg.IsDev()):
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		ropts := &redis.Options{Addr: mr.Addr()}
		applyRedisTimeouts(ropts, cfg)
		rt.redis = redis.NewClient(ropts)
		rt.close = append(rt.close, mr.Close)
		logger.Warn().Str("addr", mr.Addr()).Msg("using in-process miniredis; codes are not shared with other processes")
	case cfg.RedisURL != "":
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		applyRedisTimeouts(ropts, cfg)
		rt.redis = redis.NewClient(ropts)
	default:
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	client := rt.redis
	rt.close = append(rt.close, func() { _ = client.Close() })
	rt.health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	// -------- DIRECTORY --------
	var dir interface {
		handoff.MembershipChecker
		handoff.DomainResolver
	}
	if cfg.DatabaseURL != "" {
		pool, err := directory.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.close = append(rt.close, pool.Close)
		rt.health["database"] = pool.Ping
		dir = directory.NewPostgres(pool)
		logger.Info().Msg("connected to database")
	} else {
		static, err := staticDirectory(opts.devMembers, opts.devDomains)
		if err != nil {
			rt.Close()
			return nil, err
		}
		dir = static
		logger.Warn().Msg("no DATABASE_URL; using static directory")
	}

	// -------- ENGINE --------
	builder := handoff.New().
		WithConfig(cfg.Engine()).
		WithRedis(rt.redis).
		WithDirectory(dir).
		WithLogger(logger)

	if opts.auditLog != "" {
		f, err := os.OpenFile(opts.auditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		rt.close = append(rt.close, func() { _ = f.Close() })
		builder = builder.WithAuditSink(handoff.NewJSONWriterSink(f))
	}

	engine, err := builder.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine

	return rt, nil
}

// applyRedisTimeouts keeps every Redis round trip on the redirect path
// sub-second. ContextTimeoutEnabled lets the engine's per-call deadline
// override the socket timeouts.
func applyRedisTimeouts(opts *redis.Options, cfg *config.Config) {
	opts.DialTimeout = cfg.RedisDialTimeout
	opts.ReadTimeout = cfg.RedisReadTimeout
	opts.WriteTimeout = cfg.RedisWriteTimeout
	opts.ContextTimeoutEnabled = true
}

// staticDirectory builds a directory from "user@tenant" memberships and
// "tenant=domain" entries.
func staticDirectory(members, domains []string) (*directory.Static, error) {
	dir := directory.NewStatic()
	for _, m := range members {
		user, tenant, ok := strings.Cut(m, "@")
		if !ok || user == "" || tenant == "" {
			return nil, fmt.Errorf("invalid dev member %q, want user@tenant", m)
		}
		dir.AddMember(user, tenant)
	}
	for _, d := range domains {
		tenant, domain, ok := strings.Cut(d, "=")
		if !ok || tenant == "" || domain == "" {
			return nil, fmt.Errorf("invalid dev domain %q, want tenant=domain", d)
		}
		dir.SetDomain(tenant, domain)
	}
	return dir, nil
}
