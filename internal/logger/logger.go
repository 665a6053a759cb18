// Package logger provides the structured zerolog logger shared by the
// API server and the bid workers.
package logger

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const (
	// RequestIDKey is the context key for the request id.
	RequestIDKey ctxKey = "request_id"
	// AuctionIDKey is the context key for the auction id.
	AuctionIDKey ctxKey = "auction_id"
)

const serviceName = "auctiond"

// Log is the global logger. It is usable before Init and gets replaced by it.
var Log = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	TimeFormat string
}

// DefaultConfig reads LOG_LEVEL and LOG_FORMAT, defaulting to info/json.
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

// Init configures the global logger. Unknown levels fall back to info.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: zerolog.TimeFieldFormat}
	}

	Log = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
	log.Logger = Log
}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithAuctionID stores an auction id in ctx.
func WithAuctionID(ctx context.Context, auctionID uint64) context.Context {
	return context.WithValue(ctx, AuctionIDKey, strconv.FormatUint(auctionID, 10))
}

// FromContext returns a logger carrying the ids found in ctx.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := Log.With()
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		l = l.Str("request_id", v)
	}
	if v, ok := ctx.Value(AuctionIDKey).(string); ok && v != "" {
		l = l.Str("auction_id", v)
	}
	logger := l.Logger()
	return &logger
}

// Auction returns a logger scoped to one auction.
func Auction(auctionID uint64) *zerolog.Logger {
	l := Log.With().Uint64("auction_id", auctionID).Logger()
	return &l
}

// Component returns a logger tagged with a component name.
func Component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
