package driverbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"driver_bot/internal/config"
	"driver_bot/internal/driver"
	"driver_bot/internal/registration"
	"driver_bot/internal/store/postgres"
	"driver_bot/internal/store/redisstore"
	"driver_bot/internal/store/sqlite"
)

const sweepInterval = time.Minute

// openRedis возвращает nil, если Redis не настроен или недоступен.
func openRedis(ctx context.Context, url string, logger *slog.Logger) redis.UniversalClient {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Error("redis url parse failed", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis ping failed", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	return client
}

// openDriverStore выбирает хранилище заявок по DB_DRIVER; без DATABASE_URL заявки живут в памяти.
func openDriverStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (driver.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("database url missing, using in-memory driver store")
		return driver.NewMemoryStore(), func() {}, nil
	}
	if cfg.DBDriver == config.DBDriverSQLite {
		store, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	db, err := postgres.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connect failed: %w", err)
	}
	if err := postgres.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return postgres.NewDriverStore(db), func() { _ = db.Close() }, nil
}

// newSessionStore возвращает хранилище сессий, общую блокировку и фоновую очистку, если они нужны.
func newSessionStore(client redis.UniversalClient, ttl time.Duration) (registration.SessionStore, registration.Locker, func(ctx context.Context)) {
	if client != nil {
		sessions := redisstore.NewSessionStore(client, ttl, "driver_bot:session")
		locker := redisstore.NewSessionLocker(client, "driver_bot:session_lock", 0)
		return sessions, locker, nil
	}
	sessions := registration.NewMemorySessionStore(ttl)
	return sessions, nil, func(ctx context.Context) { sessions.Run(ctx, sweepInterval) }
}
