package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// Options returns the connection settings shared by the go-redis client and the
// fiber limiter storage.
func Options() (host string, port int, password string, db int) {
	host = env.GetEnv("CACHE_HOST", "localhost")
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return host, port, env.GetEnv("CACHE_PASSWORD", ""), env.GetEnvInt("CACHE_DB", 0)
}

// SetupCache initializes the connection to the Redis-compatible cache server
func SetupCache() {
	host, port, password, db := Options()

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache: %v", err)
	} else {
		log.Infof("[Cache] Connected: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}
