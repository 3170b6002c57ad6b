package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ksred/revchain/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock(t *testing.T) {
	lock := NewLocalLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "k")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(waitCtx, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	release()
	// Releasing twice must not free a lock taken by someone else
	release()

	release2, err := lock.Acquire(ctx, "k")
	require.NoError(t, err)

	waitCtx2, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	_, err = lock.Acquire(waitCtx2, "k")
	assert.Error(t, err)

	release2()
}

func TestLocalLock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalLock().Acquire(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNoopLock(t *testing.T) {
	release, err := NoopLock{}.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
}

func newRedisLock(t *testing.T, ttl time.Duration) (*RedisLock, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lock := NewRedisLock(client, ttl)
	lock.pollInterval = 5 * time.Millisecond
	return lock, mr
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	lock, mr := newRedisLock(t, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "schema")
	require.NoError(t, err)
	assert.True(t, mr.Exists("revchain:lock:schema"))
	assert.Equal(t, time.Minute, mr.TTL("revchain:lock:schema"))

	release()
	assert.False(t, mr.Exists("revchain:lock:schema"))

	release2, err := lock.Acquire(ctx, "schema")
	require.NoError(t, err)
	release2()
}

func TestRedisLock_Contended(t *testing.T) {
	lock, _ := newRedisLock(t, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "schema")
	require.NoError(t, err)
	defer release()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	_, err = lock.Acquire(waitCtx, "schema")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRedisLock_ReleaseOnlyOwnToken(t *testing.T) {
	lock, mr := newRedisLock(t, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "schema")
	require.NoError(t, err)

	// The lease expired and another holder took the key
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("revchain:lock:schema", "someone-else"))

	release()
	value, err := mr.Get("revchain:lock:schema")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestRedisLock_RenewsWhileHeld(t *testing.T) {
	lock, mr := newRedisLock(t, time.Second)
	lock.renewInterval = 10 * time.Millisecond
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "schema")
	require.NoError(t, err)
	defer release()

	// Well past the TTL in total, in slices the renewals can keep up with
	for i := 0; i < 4; i++ {
		mr.FastForward(600 * time.Millisecond)
		require.Eventually(t, func() bool {
			return mr.TTL("revchain:lock:schema") == time.Second
		}, time.Second, 5*time.Millisecond)
	}
	assert.True(t, mr.Exists("revchain:lock:schema"))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = lock.Acquire(waitCtx, "schema")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRedisLock_LeaseLost(t *testing.T) {
	lock, mr := newRedisLock(t, time.Second)
	lock.renewInterval = 10 * time.Millisecond
	ctx := context.Background()

	release, lost, err := lock.AcquireLease(ctx, "schema")
	require.NoError(t, err)
	defer release()

	select {
	case <-lost:
		t.Fatal("lease reported lost while the key is held")
	case <-time.After(50 * time.Millisecond):
	}

	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("revchain:lock:schema"))

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("expired lease was not reported")
	}
}

func TestRedisLock_ReleaseStopsRenewal(t *testing.T) {
	lock, mr := newRedisLock(t, time.Second)
	lock.renewInterval = 5 * time.Millisecond
	ctx := context.Background()

	release, lost, err := lock.AcquireLease(ctx, "schema")
	require.NoError(t, err)
	release()
	assert.False(t, mr.Exists("revchain:lock:schema"))

	// A stopped loop neither recreates the key nor reports a loss
	time.Sleep(30 * time.Millisecond)
	assert.False(t, mr.Exists("revchain:lock:schema"))
	select {
	case <-lost:
		t.Fatal("release must not close the lost channel")
	default:
	}
}

func TestRedisLock_WaitsForRelease(t *testing.T) {
	lock, _ := newRedisLock(t, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "schema")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	release2, err := lock.Acquire(waitCtx, "schema")
	require.NoError(t, err)
	release2()
}

func TestRunner_CloseClosesRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.NewDefault()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Migrations.Lock.Driver = config.LockRedis
	cfg.Redis.Addr = mr.Addr()

	reg, err := NewRegistry(threeRevisions(&journal{})...)
	require.NoError(t, err)
	runner, err := NewRunnerFromConfig(cfg, setupTestDB(t), reg, zerolog.Nop(), nil)
	require.NoError(t, err)

	locker, ok := runner.locker.(*RedisLock)
	require.True(t, ok)
	require.NoError(t, locker.client.Ping(context.Background()).Err())

	require.NoError(t, runner.Close())
	assert.ErrorIs(t, locker.client.Ping(context.Background()).Err(), redis.ErrClosed)
}

func TestRunner_CloseWithoutCloser(t *testing.T) {
	runner := newTestRunner(t, setupTestDB(t), nil, WithLocker(NewLocalLock(), "test"))
	assert.NoError(t, runner.Close())
}

func TestNewOfflineRunner(t *testing.T) {
	reg, err := NewRegistry(threeRevisions(&journal{})...)
	require.NoError(t, err)

	cfg := config.NewDefault()
	cfg.Database.Driver = config.DriverPostgres
	cfg.Migrations.VersionTable = "custom_version"

	runner, err := NewOfflineRunner(cfg, reg, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	stmts, err := runner.SQL(ctx, Up, "base:a1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-- Running upgrade base -> a1",
		"CREATE TABLE \"alpha\" (\n\t\"id\" SERIAL NOT NULL,\n\tPRIMARY KEY (\"id\")\n)",
		`INSERT INTO "custom_version" (version_num) VALUES ('a1')`,
	}, stmts)

	// Anything that needs the marker reports the missing connection
	_, err = runner.SQL(ctx, Up, "head")
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = runner.Current(ctx)
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = runner.Upgrade(ctx, "head")
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = runner.History(ctx, 10)
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.NoError(t, runner.Close())
}

func TestHashLockKey(t *testing.T) {
	assert.Equal(t, hashLockKey("revchain"), hashLockKey("revchain"))
	assert.NotEqual(t, hashLockKey("revchain"), hashLockKey("other"))
	assert.GreaterOrEqual(t, hashLockKey("revchain"), int64(0))
}

func TestNewLocker(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		driver   string
		expected interface{}
	}{
		{driver: config.LockAuto, expected: &LocalLock{}},
		{driver: config.LockLocal, expected: &LocalLock{}},
		{driver: config.LockNone, expected: NoopLock{}},
		{driver: config.LockRedis, expected: &RedisLock{}},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := config.NewDefault()
			cfg.Database.Driver = config.DriverSQLite
			cfg.Migrations.Lock.Driver = tt.driver

			locker, err := NewLocker(cfg, db)
			require.NoError(t, err)
			assert.IsType(t, tt.expected, locker)
		})
	}
}

func TestNewRunnerFromConfig(t *testing.T) {
	db := setupTestDB(t)
	reg, err := NewRegistry(threeRevisions(&journal{})...)
	require.NoError(t, err)

	cfg := config.NewDefault()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Migrations.VersionTable = "custom_version"
	cfg.Migrations.HistoryTable = "custom_history"
	cfg.Migrations.TransactionMode = config.TransactionSingle

	runner, err := NewRunnerFromConfig(cfg, db, reg, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.Equal(t, Single, runner.Mode())

	_, err = runner.Upgrade(context.Background(), "head")
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("custom_version"))
	assert.True(t, db.Migrator().HasTable("custom_history"))
	assert.False(t, db.Migrator().HasTable("schema_version"))
}
