package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewPayoutLimiter(nil, config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowUser(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLockUser(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, limiter.ReleaseUser(context.Background(), "42", token))
}

func TestEnabledLimiterValidatesConfig(t *testing.T) {
	_, err := NewPayoutLimiter(nil, config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewPayoutLimiter(nil, config.Config{RateLimit: config.RateLimitConfig{
		Enabled: true, RedisAddr: "localhost:6379", PayoutRate: 0, PayoutBurst: 1,
	}})
	assert.Error(t, err)
}

func TestBucketHelpers(t *testing.T) {
	assert.Equal(t, 2*time.Second, defaultBucketTTL(5, 5))
	assert.Equal(t, 20*time.Second, defaultBucketTTL(0.5, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))

	assert.Equal(t, 2*time.Second, retryAfterFor(0, 0.5))
	assert.Equal(t, time.Duration(0), retryAfterFor(1, 1))

	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(3), castToInt(3.7))
	assert.Equal(t, 2.5, castToFloat("2.5"))
	assert.Equal(t, float64(4), castToFloat(int64(4)))
	assert.Equal(t, float64(0), castToFloat(nil))
}

func TestNilPrimitivesReportErrors(t *testing.T) {
	var bucket *TokenBucket
	res, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.False(t, res.Allowed)

	var lock *withdrawalLock
	_, _, err = lock.acquire(context.Background(), "42")
	assert.Error(t, err)
	assert.NoError(t, lock.releaseUser(context.Background(), "42", "t"))
}

func TestPayoutLockKeyIsPerUser(t *testing.T) {
	assert.Equal(t, "payout:lock:user:42", payoutLockKey(" 42 "))
	assert.NotEqual(t, payoutLockKey("42"), payoutLockKey("43"))
	assert.Nil(t, newWithdrawalLock(nil, time.Second))

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	lock := newWithdrawalLock(client, 0)
	assert.Equal(t, defaultPayoutLockTTL, lock.ttl)
}
