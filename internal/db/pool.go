package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leaguesim/internal/config"
	"leaguesim/internal/store"
	"leaguesim/internal/store/pgstore"
	"leaguesim/internal/store/sqlitestore"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Open returns the store driver selected by cfg.Driver. The returned close
// func releases whatever the driver holds.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Driver, func(), error) {
	switch cfg.Driver {
	case "memory":
		d := store.NewMemory()
		return d, func() { _ = d.Close() }, nil
	case "sqlite":
		d, err := sqlitestore.Open(cfg.SQLiteFile, cfg.LeagueID)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	case "postgres":
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		d := pgstore.New(pool, cfg.LeagueID, logger)
		if err := d.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return d, pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
