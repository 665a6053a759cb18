package config

import "time"

// ResolverConfig configures the bid resolver's CAS retry policy and the
// lifecycle sweeper that runs next to it in the worker.
type ResolverConfig struct {
    MaxAttempts     int
    Backoff         time.Duration
    Multiplier      float64
    MaxBackoff      time.Duration
    InfraRetryDelay time.Duration
    SweepInterval   time.Duration
}

func LoadResolverConfig() ResolverConfig {
    cfg := ResolverConfig{
        MaxAttempts:     envInt("BID_MAX_ATTEMPTS", 3),
        Backoff:         envDur("BID_RETRY_BACKOFF", 50*time.Millisecond),
        Multiplier:      envFloat("BID_RETRY_MULTIPLIER", 1),
        MaxBackoff:      envDur("BID_RETRY_MAX_BACKOFF", time.Second),
        InfraRetryDelay: envDur("INFRA_RETRY_DELAY", time.Second),
        SweepInterval:   envDur("LIFECYCLE_SWEEP_INTERVAL", 5*time.Second),
    }
    if cfg.MaxAttempts < 1 { cfg.MaxAttempts = 1 }
    if cfg.Multiplier < 1 { cfg.Multiplier = 1 }
    return cfg
}
