package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/havenstay/backend/internal/config"
	"go.uber.org/zap"
)

// InitRedis connects to Redis. It returns nil when Redis is disabled or
// unreachable; notifications are then skipped.
func InitRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		logger.Info("redis disabled, guest notifications will not be queued")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Warn("redis connection failed, continuing without redis", zap.String("addr", cfg.Addr()), zap.Error(err))
		rdb.Close()
		return nil
	}

	logger.Info("redis connection established", zap.String("addr", cfg.Addr()))
	return rdb
}
