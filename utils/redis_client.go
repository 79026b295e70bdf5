package utils

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/hitcount/config"
)

var (
	redisClient *redis.Client
	redisErr    error
	redisOnce   sync.Once
)

// NewRedisClient builds a client for cfg and pings it once.
func NewRedisClient(cfg config.AppConfig) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping %s: %w", rc.Options().Addr, err)
	}
	return rc, nil
}

// GetRedis returns a singleton Redis client based on loaded config, or nil with the
// connection error when Redis is unreachable so callers can fall back.
func GetRedis() (*redis.Client, error) {
	redisOnce.Do(func() {
		redisClient, redisErr = NewRedisClient(config.Get())
	})
	return redisClient, redisErr
}
