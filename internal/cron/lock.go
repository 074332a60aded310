package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 30 * time.Minute

	// SchedulerLockName is shared by the cron worker and the HTTP trigger so
	// two reconciliation passes never overlap.
	SchedulerLockName = "cron:subscriptions"
)

// ErrLockHeld is returned by WithLock when another run owns the lock.
var ErrLockHeld = errors.New("scheduler lock held by another run")

// ErrLockLost is the cancellation cause when a held lock could not be renewed.
var ErrLockLost = errors.New("scheduler lock lost before run finished")

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// renewableLock is extended periodically by WithLock while the run is going.
type renewableLock interface {
	Extend(ctx context.Context) (bool, error)
	RenewEvery() time.Duration
}

// LockFactory hands out a fresh Lock per run. RedisLock remembers its owner
// token, so concurrent callers must not share one.
type LockFactory func() (Lock, error)

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// NewRedisLockFactory returns a LockFactory producing RedisLocks on key.
func NewRedisLockFactory(client redisStore, key string, ttl time.Duration) (LockFactory, error) {
	if _, err := NewRedisLock(client, key, ttl); err != nil {
		return nil, err
	}
	return func() (Lock, error) {
		return NewRedisLock(client, key, ttl)
	}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}

// Extend pushes the TTL out again while the owner value still matches. It
// reports false once the lock belongs to someone else or has expired.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		return false, nil
	}
	ok, err := l.client.Expire(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	return ok, nil
}

// RenewEvery leaves two renewal attempts before the TTL runs out.
func (l *RedisLock) RenewEvery() time.Duration {
	return l.ttl / 3
}

// WithLock runs fn while holding lock. It returns ErrLockHeld without
// calling fn when the lock is owned elsewhere. Renewable locks are kept
// alive until fn returns; if renewal finds the lock gone, fn's context is
// canceled and ErrLockLost is returned. A release failure is returned only
// when fn itself succeeded.
func WithLock(ctx context.Context, lock Lock, fn func(ctx context.Context) error) (err error) {
	if lock == nil {
		return errors.New("lock required")
	}
	locked, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		return ErrLockHeld
	}
	defer func() {
		// The run's context may already be canceled; the release must still go out.
		relErr := lock.Release(context.WithoutCancel(ctx))
		if err == nil && relErr != nil {
			err = fmt.Errorf("lock release: %w", relErr)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if r, ok := lock.(renewableLock); ok && r.RenewEvery() > 0 {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			keepAlive(runCtx, r, stop, cancel)
		}()
		defer func() {
			close(stop)
			<-done
		}()
	}

	err = fn(runCtx)
	if errors.Is(context.Cause(runCtx), ErrLockLost) {
		return errors.Join(ErrLockLost, err)
	}
	return err
}

func keepAlive(ctx context.Context, lock renewableLock, stop <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(lock.RenewEvery())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := lock.Extend(ctx)
			if err != nil {
				// transient; the next tick still lands inside the TTL
				continue
			}
			if !ok {
				cancel(ErrLockLost)
				return
			}
		}
	}
}
