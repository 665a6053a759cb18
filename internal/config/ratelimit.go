package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig configures the Redis token bucket applied to HTTP
// routes.  Buckets are per caller and route: per bidder once a token is
// presented, per address otherwise.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    Prefix         string
}

func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
    }
    if b := envInt("RATE_LIMIT_BURST", -1); b > 0 { def.Capacity = b }
    if def.Capacity < 1 { def.Capacity = 1 }
    if def.RefillTokens < 1 { def.RefillTokens = 1 }
    if def.RefillInterval <= 0 { def.RefillInterval = time.Second }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL { def.TTL = minTTL }
    return def
}

// AdmissionConfig configures admission control on the realtime channel:
// a cap on new sockets per source address and sliding windows on
// actions per address and per bidder.
type AdmissionConfig struct {
    Enabled        bool
    ConnPerIP      int
    ConnWindow     time.Duration
    ActionsPerIP   int
    ActionsPerUser int
    ActionWindow   time.Duration
}

func LoadAdmissionConfig() AdmissionConfig {
    cfg := AdmissionConfig{
        Enabled:        envBool("ADMISSION_ENABLED", true),
        ConnPerIP:      envInt("WS_MAX_CONN_PER_IP", 5),
        ConnWindow:     envDur("WS_CONN_WINDOW", time.Minute),
        ActionsPerIP:   envInt("WS_ACTIONS_PER_IP", 100),
        ActionsPerUser: envInt("WS_ACTIONS_PER_USER", 50),
        ActionWindow:   envDur("WS_ACTION_WINDOW", time.Minute),
    }
    if cfg.ConnWindow < time.Second { cfg.ConnWindow = time.Second }
    if cfg.ActionWindow < time.Second { cfg.ActionWindow = time.Second }
    return cfg
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envFloat(k string, d float64) float64 {
    v := os.Getenv(k); if v == "" { return d }
    if f, err := strconv.ParseFloat(v, 64); err == nil { return f }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
