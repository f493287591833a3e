package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/gobacklinks/internal/config"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/quota"
)

// SetupRedis connects to Redis if it is enabled. Returns nil if Redis is
// disabled or unavailable; callers must treat a nil client as "feature off".
func SetupRedis(cfg *config.Config, log logger.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis not available, events and quota disabled",
			logger.Error(err),
		)
		_ = client.Close()
		return nil
	}

	log.Info("Redis connected",
		logger.String("redis_address", cfg.Redis.Address),
	)
	return client
}

// SetupQuota creates the lookup quota service. Returns nil when Redis is not
// available, in which case lookups are not gated.
func SetupQuota(cfg *config.Config, client *redis.Client, log logger.Logger) quota.Service {
	if client == nil {
		return nil
	}
	return quota.NewRedisService(client, quota.Limits{
		FreeSearches: cfg.Quota.FreeSearchesPerMonth,
	}, log)
}
