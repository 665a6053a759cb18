package config // package config loads application configuration from environment variables

import (
    "os" // os provides access to environment variables

    "github.com/rs/zerolog/log" // log reports configuration errors and halts execution
)

// Config holds the runtime configuration shared by every command.  Each
// field corresponds to an environment variable.  Concern-specific
// settings (queue, resolver, rate limits, cache) have their own loaders
// in this package.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    JWTSecret    string // secret used to sign and verify JWTs
    AccessTTLMin int    // access token time-to-live in minutes
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:          must("APP_ENV"),                      // environment (dev/test/prod)
        Port:         envStr("APP_PORT", "8080"),           // port to bind the HTTP server
        DBUser:       must("DB_USER"),                      // database user
        DBPass:       os.Getenv("DB_PASS"),                 // database password (empty allowed)
        DBHost:       must("DB_HOST"),                      // database host
        DBPort:       envStr("DB_PORT", "3306"),            // database port
        DBName:       must("DB_NAME"),                      // database name
        JWTSecret:    must("JWT_SECRET"),                   // secret used for signing JWTs
        AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 1440), // one day, as issued by login
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatal().Str("key", key).Msg("missing required env var")
    }
    return v
}
