package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/history-cli/internal/config"
	"github.com/sells-group/history-cli/internal/resilience"
	"github.com/sells-group/history-cli/internal/schema"
	"github.com/sells-group/history-cli/internal/store"
)

// initStore opens the configured store, retrying transient connect errors.
// pool only applies to PostgreSQL.
func initStore(ctx context.Context, pool *store.PoolConfig) (store.Store, error) {
	dialect := schema.DetectDialect(cfg.Store.Driver, cfg.Store.DatabaseURL)

	policy := resilience.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)

	return resilience.Connect(ctx, policy, string(dialect), func(ctx context.Context) (store.Store, error) {
		return openStore(ctx, dialect, pool)
	})
}

func openStore(ctx context.Context, dialect schema.Dialect, pool *store.PoolConfig) (store.Store, error) {
	switch dialect {
	case schema.DialectSQLite:
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = config.DefaultSQLitePath
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case schema.DialectPostgres:
		if pool == nil {
			pool = &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, pool)
		if err != nil {
			return nil, err
		}
		return st, nil
	case schema.DialectMySQL:
		st, err := store.NewMySQL(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
