package config

// This file defines the Redis client constructor.  Redis carries the
// per-auction event channels, realtime admission counters, the HTTP
// token bucket and the response cache.  If the first ping fails the
// client is still returned: go-redis reconnects on demand, and every
// caller treats Redis errors as a degraded (fail-open) condition.

import (
    "context"
    "crypto/tls"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// NewRedisClient instantiates a Redis client using environment variables.
// Supported variables are:
//   REDIS_URL – redis:// URL (takes precedence over everything below)
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func NewRedisClient() *redis.Client {
    opts := redisOptions()
    client := redis.NewClient(opts)

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Warn().Err(err).Str("address", opts.Addr).Msg("redis ping failed; continuing degraded")
    } else {
        log.Info().Str("address", opts.Addr).Msg("redis connected")
    }
    return client
}

func redisOptions() *redis.Options {
    if raw := os.Getenv("REDIS_URL"); raw != "" {
        if opts, err := redis.ParseURL(raw); err == nil {
            return opts
        }
        log.Warn().Msg("invalid REDIS_URL; falling back to REDIS_HOST/REDIS_PORT")
    }
    host := os.Getenv("REDIS_HOST")
    port := os.Getenv("REDIS_PORT")
    addr := os.Getenv("REDIS_ADDR")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    dbNum := 0
    if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
        if n, err := strconv.Atoi(dbStr); err == nil {
            dbNum = n
        }
    }
    var tlsConf *tls.Config
    if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
        tlsConf = &tls.Config{InsecureSkipVerify: true}
    }
    return &redis.Options{
        Addr:      addr,
        Password:  os.Getenv("REDIS_PASSWORD"),
        DB:        dbNum,
        TLSConfig: tlsConf,
    }
}
