package migration

import (
	"fmt"

	"github.com/ksred/revchain/internal/config"
	"github.com/ksred/revchain/internal/schema"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// NewLocker builds the lock driver named by the configuration
func NewLocker(cfg *config.Config, db *gorm.DB) (Locker, error) {
	switch cfg.LockDriver() {
	case config.LockPostgres:
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		return NewPostgresLock(sqlDB), nil
	case config.LockRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisLock(client, cfg.Migrations.Lock.TTL), nil
	case config.LockNone:
		return NoopLock{}, nil
	case config.LockLocal:
		return NewLocalLock(), nil
	}
	return nil, fmt.Errorf("unsupported lock driver: %q", cfg.LockDriver())
}

// NewRunnerFromConfig wires a Runner with the configured tables, lock and
// transaction mode. metrics may be nil.
func NewRunnerFromConfig(cfg *config.Config, db *gorm.DB, registry *Registry, logger zerolog.Logger, metrics *Metrics) (*Runner, error) {
	dialect, err := schema.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	locker, err := NewLocker(cfg, db)
	if err != nil {
		return nil, err
	}

	return NewRunner(db, registry, logger,
		WithDialect(dialect),
		WithStore(NewStore(cfg.Migrations.VersionTable, cfg.Migrations.HistoryTable)),
		WithLocker(locker, cfg.Migrations.Lock.Key),
		WithLockTimeout(cfg.Migrations.Lock.Timeout),
		WithTransactionMode(TransactionMode(cfg.Migrations.TransactionMode)),
		WithMetrics(metrics),
	), nil
}

// NewOfflineRunner builds a runner with no connection. It can only render
// SQL for explicit from:to ranges, in the dialect of the configured driver.
func NewOfflineRunner(cfg *config.Config, registry *Registry, logger zerolog.Logger) (*Runner, error) {
	dialect, err := schema.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	return NewRunner(nil, registry, logger,
		WithDialect(dialect),
		WithStore(NewStore(cfg.Migrations.VersionTable, cfg.Migrations.HistoryTable)),
		WithLocker(NoopLock{}, cfg.Migrations.Lock.Key),
	), nil
}
