package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sahilchouksey/learnhub-api/utils/cache"
)

// OrderLocker serializes order creation per (user, course)
type OrderLocker interface {
	// TryLock returns a release func, or ok=false if another request holds the lock
	TryLock(ctx context.Context, userID, courseID uint) (release func(), ok bool, err error)
}

func orderLockKey(userID, courseID uint) string {
	return fmt.Sprintf("lock:order:%d:%d", userID, courseID)
}

// RedisOrderLocker holds the lock in Redis so it spans all API instances
type RedisOrderLocker struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewRedisOrderLocker(c *cache.RedisCache, ttl time.Duration) *RedisOrderLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisOrderLocker{cache: c, ttl: ttl}
}

func (l *RedisOrderLocker) TryLock(ctx context.Context, userID, courseID uint) (func(), bool, error) {
	key := orderLockKey(userID, courseID)
	token, ok, err := l.cache.AcquireLock(ctx, key, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		// Released on a fresh context, the request one may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.cache.ReleaseLock(ctx, key, token)
	}
	return release, true, nil
}

// LocalOrderLocker is the single-process fallback used when Redis is not configured
type LocalOrderLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalOrderLocker() *LocalOrderLocker {
	return &LocalOrderLocker{held: make(map[string]struct{})}
}

func (l *LocalOrderLocker) TryLock(_ context.Context, userID, courseID uint) (func(), bool, error) {
	key := orderLockKey(userID, courseID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
