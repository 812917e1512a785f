// Package app assembles the reconciler and its stores from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"example.com/studysync/internal/config"
	"example.com/studysync/internal/keylock"
	"example.com/studysync/internal/localstore/sqlite"
	"example.com/studysync/internal/observability"
	"example.com/studysync/internal/reconcile"
	remotepg "example.com/studysync/internal/remotestore/postgres"
)

const leasePrefix = "studysync:lease:"

// Components are the wired dependencies of a reconciling binary.
type Components struct {
	Reconciler *reconcile.Reconciler
	Local      *sqlite.Store
	Pool       *pgxpool.Pool
	Metrics    *observability.Metrics

	closers []func()
}

// Build opens the local SQLite store, the Postgres pool and, when leases are backed by
// Redis, a Redis client, and returns a Reconciler over them. Metrics are registered on reg.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*Components, error) {
	c := &Components{}

	db, err := sqlite.Open(cfg.LocalStorePath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	c.closers = append(c.closers, func() { _ = db.Close() })
	c.Local = sqlite.NewStore(db)

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	c.closers = append(c.closers, pool.Close)
	c.Pool = pool

	locker, closeLocker := newLocker(cfg, logger)
	c.closers = append(c.closers, closeLocker)

	c.Metrics = observability.NewMetrics(reg)
	c.Reconciler = reconcile.New(c.Local, remotepg.NewRepository(pool),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(c.Metrics),
		reconcile.WithLocker(locker),
		reconcile.WithConcurrency(cfg.ReconcileWorkers),
		reconcile.WithCallTimeout(cfg.RemoteCallTimeout),
	)
	return c, nil
}

// newLocker picks the dedup key lease implementation. The Postgres schema enforces unique
// dedup keys, so by default no leases are taken and a lost race is a plain skip.
func newLocker(cfg config.Config, logger zerolog.Logger) (keylock.Locker, func()) {
	switch cfg.KeyLeaseMode {
	case config.LeaseLocal:
		logger.Info().Msg("dedup key leases held in process")
		return keylock.NewLocal(), func() {}
	case config.LeaseRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("dedup key leases backed by redis")
		return keylock.NewRedis(client, leasePrefix, cfg.KeyLeaseTTL, logger), func() { _ = client.Close() }
	default:
		return keylock.Noop{}, func() {}
	}
}

// Close releases everything Build opened, in reverse order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
