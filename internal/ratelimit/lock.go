package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPayoutLock        = "payout:lock:user:%s"
	defaultPayoutLockTTL = 30 * time.Second
)

// releaseIfHeld deletes the lock only while it still carries the caller's
// token, so an expired holder cannot free a lock taken by the next request.
const releaseIfHeld = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrLockLost means the lock expired, and may have been re-taken, before
// the holder released it. The initiation it guarded ran longer than the TTL.
var ErrLockLost = errors.New("payout lock expired before release")

// withdrawalLock serializes payout initiation per user across replicas.
type withdrawalLock struct {
	client  *redis.Client
	release *redis.Script
	ttl     time.Duration
}

func newWithdrawalLock(client *redis.Client, ttl time.Duration) *withdrawalLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultPayoutLockTTL
	}
	return &withdrawalLock{
		client:  client,
		release: redis.NewScript(releaseIfHeld),
		ttl:     ttl,
	}
}

func payoutLockKey(userID string) string {
	return fmt.Sprintf(keyPayoutLock, strings.TrimSpace(userID))
}

func (l *withdrawalLock) acquire(ctx context.Context, userID string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("payout lock not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", false, errors.New("payout lock needs a user id")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, payoutLockKey(userID), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *withdrawalLock) releaseUser(ctx context.Context, userID, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	deleted, err := l.release.Run(ctx, l.client, []string{payoutLockKey(userID)}, token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockLost
	}
	return nil
}
