package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payoutd/internal/config"
	"go.uber.org/fx"
)

const keyPayoutRequests = "payout:requests:user:%s"

// PayoutLimiter throttles withdrawal requests per user and serializes
// initiation per user across replicas. A nil limiter allows everything.
type PayoutLimiter struct {
	client *redis.Client
	bucket *TokenBucket
	lock   *withdrawalLock

	rate  float64
	burst int
}

func NewPayoutLimiter(lc fx.Lifecycle, cfg config.Config) (*PayoutLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.PayoutRate <= 0 || limitCfg.PayoutBurst <= 0 {
		return nil, errors.New("payout rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	return &PayoutLimiter{
		client: client,
		bucket: NewTokenBucket(client),
		lock:   newWithdrawalLock(client, limitCfg.PayoutLockTTL),
		rate:   limitCfg.PayoutRate,
		burst:  limitCfg.PayoutBurst,
	}, nil
}

func (l *PayoutLimiter) Enabled() bool {
	return l != nil && l.client != nil
}

// AllowUser consumes one payout request token for the user.
func (l *PayoutLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPayoutRequests, strings.TrimSpace(userID)), l.rate, l.burst)
}

func (l *PayoutLimiter) TryLockUser(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.lock.acquire(ctx, userID)
}

func (l *PayoutLimiter) ReleaseUser(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.lock.releaseUser(ctx, userID, token)
}
