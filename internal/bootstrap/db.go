package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/config"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/storage/postgres"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/storage/redis"
)

// OpenAccounts connects the configured accounts backend. With the none
// backend it returns a nil Store and a no-op close.
func OpenAccounts(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Accounts.Backend {
	case config.AccountsPostgres:
		db, err := postgres.NewConnection(ctx, &cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		store := repository.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("accounts schema: %w", err)
		}
		log.Info("accounts backend ready", zap.String("backend", "postgres"))
		return store, db.Close, nil

	case config.AccountsRedis:
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		log.Info("accounts backend ready", zap.String("backend", "redis"), zap.String("addr", cfg.Redis.Addr))
		return repository.NewRedisStore(client), client.Close, nil

	default:
		log.Warn("no accounts backend configured, every identified caller acts as a developer")
		return nil, noop, nil
	}
}
