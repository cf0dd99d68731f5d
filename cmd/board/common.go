package main

import (
	"context"
	"fmt"

	"mission-control/board/internal/codec"
	"mission-control/board/internal/config"
	"mission-control/board/internal/database"
	"mission-control/board/internal/lifecycle"
	"mission-control/board/internal/services"
	"mission-control/board/internal/store"
	"mission-control/board/internal/table"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"
)

// app is the wired core shared by every command.
type app struct {
	backend   *table.Guarded
	store     *store.Store
	lifecycle *lifecycle.Manager
	board     *services.BoardService
	pool      *database.DatabasePool
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}
}

func openApp(cfg *config.Config) (*app, error) {
	a := &app{}

	backend, err := openBackend(cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.backend = table.NewGuarded(backend, table.NewBreaker(&table.BreakerConfig{
		MaxFailures:      cfg.Breaker.MaxFailures,
		Timeout:          cfg.Breaker.Timeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}), table.NewMetrics())
	a.store = store.New(a.backend)
	a.lifecycle = lifecycle.NewManager(a.store)
	a.board = services.NewBoardService(a.store, a.lifecycle)

	log.Info().Str("driver", cfg.Storage.Driver).Str("table", cfg.Storage.Table).Msg("storage ready")
	return a, nil
}

func openBackend(cfg *config.Config, a *app) (table.Backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		return table.NewMemoryBackend(codec.Indexes()...), nil

	case config.StorageRedis:
		rb := table.NewRedisBackend(redisConfig(cfg), codec.Indexes()...)
		a.closers = append(a.closers, rb.Close)
		return rb, nil

	case config.StorageSQLite, config.StoragePostgres:
		level := logger.Silent
		if debug || cfg.Log.Debug {
			level = logger.Info
		}
		pool, err := database.NewDatabasePool(&database.PoolConfig{
			Driver:          cfg.Storage.Driver,
			DSN:             cfg.GetDatabaseDSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			LogLevel:        level,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		return table.NewSQLBackend(pool.DB, codec.Indexes()...)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func redisConfig(cfg *config.Config) *table.RedisConfig {
	return &table.RedisConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		KeyPrefix:    cfg.Storage.Table,
		OpTimeout:    cfg.Storage.OpTimeout,
	}
}

// openQueueClient connects to the Redis that carries the job queue and
// checks it answers.
func openQueueClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := table.NewRedisClient(redisConfig(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.GetRedisAddr(), err)
	}
	return client, nil
}
