package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrLockNotAcquired is returned when a competition lock could not be taken
// within the retry budget.
var ErrLockNotAcquired = errors.New("competition is busy, please retry")

// Locker serializes all allocation for one competition across the service's
// instances. The value stored under the key is an owner token so that only
// the holder can release, and the TTL bounds how long a crashed holder can
// keep a competition frozen.
type Locker struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{Client: client, TTL: ttl}
}

func lockKey(competitionID int64) string {
	return fmt.Sprintf("competition_lock:%d", competitionID)
}

// TryAcquire attempts a single SetNX. It returns true when this caller now
// owns the lock.
func (l *Locker) TryAcquire(ctx context.Context, competitionID int64, token string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(competitionID), token, l.TTL).Result()
}

// Acquire retries TryAcquire with a short backoff until it succeeds, the
// context is cancelled, or the retry budget runs out. Purchases hold the lock
// across the gateway charge, so waiters need to tolerate a few seconds.
func (l *Locker) Acquire(ctx context.Context, competitionID int64, token string) error {
	const (
		retryDelay = 100 * time.Millisecond
		maxRetries = 50
	)
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryAcquire(ctx, competitionID, token)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return ErrLockNotAcquired
}

// Release deletes the lock only if this caller still owns it. A lock that
// expired and was re-acquired by someone else is left alone.
func (l *Locker) Release(ctx context.Context, competitionID int64, token string) error {
	key := lockKey(competitionID)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// IsLocked reports whether any holder currently owns the competition lock.
func (l *Locker) IsLocked(ctx context.Context, competitionID int64) (bool, error) {
	_, err := l.Client.Get(ctx, lockKey(competitionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
