package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"bazaar/leadhub/internal/config"
)

const pingTimeout = 5 * time.Second

// Connect opens the Redis client shared by settings invalidation, the task
// queue and the mock email capture, and checks it with a PING.
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis at %s is unreachable: %w", cfg.RedisAddr, err)
	}

	log.Printf("Redis: connected to %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	return rdb, nil
}

// AsynqOpt points asynq at the same Redis as rdb.
func AsynqOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func Close(rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	if err := rdb.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	log.Println("Redis: connection closed")
	return nil
}
