package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides mutual exclusion for migration runs across processes.
// The returned release function must be called exactly once; calling it
// again is harmless.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LeaseLocker is implemented by locks whose hold can run out before release.
// The lost channel is closed if that happens; it is never closed by release.
type LeaseLocker interface {
	Locker
	AcquireLease(ctx context.Context, key string) (release func(), lost <-chan struct{}, err error)
}

// PostgresLock holds a session level advisory lock on a dedicated connection
type PostgresLock struct {
	db *sql.DB
}

// NewPostgresLock creates a new PostgresLock
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

// Acquire blocks on pg_advisory_lock until the lock is granted or ctx ends.
// The connection is pinned for the lifetime of the lock since advisory
// locks belong to the session that took them.
func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection for %s: %w", key, err)
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			// The run context may already be cancelled
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
			conn.Close()
		})
	}
	return release, nil
}

// LocalLock serialises runs inside one process. SQLite has a single writer,
// so this is enough for the sqlite driver.
type LocalLock struct {
	sem chan struct{}
}

// NewLocalLock creates a new LocalLock
func NewLocalLock() *LocalLock {
	return &LocalLock{sem: make(chan struct{}, 1)}
}

// Acquire waits for the lock or for ctx to end
func (l *LocalLock) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire local lock for %s: %w", key, err)
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire local lock for %s: %w", key, ctx.Err())
	}

	var releaseOnce sync.Once
	return func() {
		releaseOnce.Do(func() { <-l.sem })
	}, nil
}

// NoopLock never blocks. Only for setups that serialise runs externally.
type NoopLock struct{}

func (NoopLock) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only if the key still holds our token
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock implements Locker with SET NX and a per-holder token. The TTL
// bounds how long a crashed holder can block others; a live holder renews
// it every ttl/3 until release.
type RedisLock struct {
	client        redis.UniversalClient
	ttl           time.Duration
	pollInterval  time.Duration
	renewInterval time.Duration
}

// NewRedisLock creates a new RedisLock
func NewRedisLock(client redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{
		client:        client,
		ttl:           ttl,
		pollInterval:  100 * time.Millisecond,
		renewInterval: ttl / 3,
	}
}

// Acquire polls SET NX until it succeeds or ctx ends
func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	release, _, err := l.AcquireLease(ctx, key)
	return release, err
}

// AcquireLease is Acquire plus a channel that is closed when a renewal
// finds the key gone or owned by someone else, or cannot reach Redis.
func (l *RedisLock) AcquireLease(ctx context.Context, key string) (func(), <-chan struct{}, error) {
	lockKey := redisLockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, nil, fmt.Errorf("acquire redis lock for %s: %w", key, err)
		}
		if ok {
			release, lost := l.hold(lockKey, token)
			return release, lost, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("acquire redis lock for %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// hold starts the renewal loop for an acquired key. release stops the loop
// and waits for it before deleting the key.
func (l *RedisLock) hold(lockKey, token string) (func(), <-chan struct{}) {
	stop := make(chan struct{})
	done := make(chan struct{})
	lost := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			renewed, err := renewScript.Run(ctx, l.client, []string{lockKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil || renewed == 0 {
				close(lost)
				return
			}
		}
	}()

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			close(stop)
			<-done
			_ = releaseScript.Run(context.Background(), l.client, []string{lockKey}, token).Err()
		})
	}
	return release, lost
}

// Close closes the Redis client the lock was built with
func (l *RedisLock) Close() error {
	return l.client.Close()
}

func redisLockKey(key string) string {
	return "revchain:lock:" + key
}

// hashLockKey maps a lock key onto the int64 space of pg_advisory_lock
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
