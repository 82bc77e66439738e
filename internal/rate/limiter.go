package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A zero Max disables the
// corresponding limit.
type Config struct {
	Namespace             string
	MaxIssuesPerUser      int
	IssueWindow           time.Duration
	MaxExchangeFailures   int
	ExchangeFailureWindow time.Duration
}

// Limiter enforces per-user issuance and per-IP exchange failure limits
// using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Namespace == "" {
		cfg.Namespace = "sso"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue counts one issuance for userID and fails once the window
// budget is exceeded.
func (l *Limiter) CheckIssue(ctx context.Context, userID string) error {
	if l == nil || l.config.MaxIssuesPerUser <= 0 || userID == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.issueKey(userID), l.config.IssueWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxIssuesPerUser) {
		return ErrRateLimited
	}
	return nil
}

// CheckExchange reports whether ip may attempt another exchange. It does
// not count the attempt; only failures are counted.
func (l *Limiter) CheckExchange(ctx context.Context, ip string) error {
	if l == nil || l.config.MaxExchangeFailures <= 0 || ip == "" {
		return nil
	}
	return l.checkCounter(ctx, l.exchangeKey(ip), l.config.MaxExchangeFailures)
}

// RecordExchangeFailure counts a failed exchange for ip.
func (l *Limiter) RecordExchangeFailure(ctx context.Context, ip string) error {
	if l == nil || l.config.MaxExchangeFailures <= 0 || ip == "" {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, l.exchangeKey(ip), l.config.ExchangeFailureWindow)
	return err
}

// ExchangeFailures returns the current failure counter for ip.
func (l *Limiter) ExchangeFailures(ctx context.Context, ip string) (int, error) {
	count, err := l.redis.Get(ctx, l.exchangeKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) issueKey(userID string) string {
	return l.config.Namespace + ":hi:" + userID
}

func (l *Limiter) exchangeKey(ip string) string {
	return l.config.Namespace + ":hx:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
