package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userdash/pkg/config"
)

// Connect opens the pool, pings it and, unless disabled, applies pending
// migrations and seeds the demo users.
func Connect(ctx context.Context, cfg *config.Server, log *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("connected to PostgreSQL")

	if cfg.ApplySchemaOnStart {
		if err := Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	if cfg.SeedOnStart {
		seedCtx, cancelSeed := context.WithTimeout(ctx, 30*time.Second)
		defer cancelSeed()
		n, err := Seed(seedCtx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed users: %w", err)
		}
		log.Info("seed applied", slog.Int("inserted", n))
	}

	return pool, nil
}
