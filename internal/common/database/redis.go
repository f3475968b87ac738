// internal/common/database/redis.go
package database

import (
	"time"

	"pages-deployer/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// OpenRegistryRedis returns a client for the task registry. Each build holds at
// most one connection for its lock polling, so the pool tracks the worker count.
func OpenRegistryRedis(cfg config.RedisConfig, workers int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     max(workers, 1) + 2,
		MinIdleConns: 1,
	})
}
