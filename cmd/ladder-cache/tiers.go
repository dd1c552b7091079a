package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/ladder-cache/internal/config"
	"github.com/terra-clan/ladder-cache/internal/flatcache"
	"github.com/terra-clan/ladder-cache/internal/health"
	"github.com/terra-clan/ladder-cache/internal/httpcache"
	"github.com/terra-clan/ladder-cache/internal/storage"
)

// tiers holds the durable cache tiers and everything that must be closed
// with them
type tiers struct {
	kv        storage.KeyValueStore
	flat      flatcache.Store
	responses httpcache.Store
	health    *health.Registry
	closers   []io.Closer
}

// openTiers opens the three durable tiers selected by cfg and registers
// their health checks. On failure the tiers opened so far are closed.
func openTiers(ctx context.Context, cfg *config.Config) (_ *tiers, err error) {
	t := &tiers{health: health.NewRegistry(2 * time.Second)}
	defer func() {
		if err != nil {
			t.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Flat.Driver == config.DriverRedis || cfg.HTTPCache.Driver == config.DriverRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		t.closers = append(t.closers, redisClient)
	}

	if t.kv, err = openStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	t.closers = append(t.closers, t.kv)
	t.health.Register("store", t.kv)

	if t.flat, err = openFlat(ctx, cfg, redisClient); err != nil {
		return nil, fmt.Errorf("failed to open flat cache: %w", err)
	}
	t.closers = append(t.closers, t.flat)
	t.health.Register("flat", t.flat)

	if t.responses, err = openHTTPCache(cfg, redisClient, t.health, &t.closers); err != nil {
		return nil, fmt.Errorf("failed to open http cache: %w", err)
	}

	return t, nil
}

// Close closes everything in reverse opening order
func (t *tiers) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil {
			slog.Error("close error", "error", err)
		}
	}
	t.closers = nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.KeyValueStore, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		slog.Info("running database migrations", "dir", cfg.Store.MigrationsDir)
		if err := storage.MigrateFromDSN(ctx, cfg.Store.DSN, cfg.Store.MigrationsDir); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return storage.NewPostgresStore(ctx, storage.PostgresConfig{
			DSN:          cfg.Store.DSN,
			MaxOpenConns: int32(cfg.Store.MaxOpenConns),
			MaxIdleConns: int32(cfg.Store.MaxIdleConns),
			MaxLifetime:  cfg.Store.ConnMaxLifetime,
		})
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil
	default:
		if err := ensureDir(cfg.Store.BoltPath); err != nil {
			return nil, err
		}
		return storage.OpenBolt(cfg.Store.BoltPath)
	}
}

func openFlat(ctx context.Context, cfg *config.Config, client *redis.Client) (flatcache.Store, error) {
	switch cfg.Flat.Driver {
	case config.DriverPostgres:
		return flatcache.OpenSQL(ctx, flatcache.DriverPostgres, cfg.FlatDSN())
	case config.DriverRedis:
		return flatcache.NewRedisStore(client, cfg.Flat.KeyPrefix), nil
	case config.DriverMemory:
		return flatcache.NewMemoryStore(), nil
	default:
		if err := ensureDir(cfg.Flat.SQLitePath); err != nil {
			return nil, err
		}
		return flatcache.OpenSQL(ctx, flatcache.DriverSQLite, cfg.Flat.SQLitePath)
	}
}

// openHTTPCache returns nil for the "none" driver, which disables response caching.
func openHTTPCache(cfg *config.Config, client *redis.Client, registry *health.Registry, closers *[]io.Closer) (httpcache.Store, error) {
	switch cfg.HTTPCache.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverMemory:
		return httpcache.NewMemoryStore(), nil
	case config.DriverRedis:
		store := httpcache.NewRedisStore(client, cfg.HTTPCache.KeyPrefix, cfg.HTTPCache.TTL)
		registry.Register("http_cache", health.CheckerFunc(store.Ping))
		return store, nil
	default:
		if err := ensureDir(cfg.HTTPCache.BoltPath); err != nil {
			return nil, err
		}
		store, err := httpcache.OpenBoltStore(cfg.HTTPCache.BoltPath)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, store)
		registry.Register("http_cache", health.CheckerFunc(store.Ping))
		return store, nil
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
