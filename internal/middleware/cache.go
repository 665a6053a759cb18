package middleware

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/live-auction/internal/config"
    "github.com/iliyamo/live-auction/internal/logger"
)

// cachedResponse is one stored read.
type cachedResponse struct {
    Status      int    `json:"status"`
    ContentType string `json:"contentType"`
    Body        []byte `json:"body"`
}

// NoStore keeps the current response out of the response cache.  Auction
// reads call it while bidding is open, since every commit moves the
// highest bid.
func NoStore(c echo.Context) {
    c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
}

// cacheKey uses the concrete path, so /v1/auctions/1 and /v1/auctions/2
// never share an entry.
func cacheKey(prefix string, r *http.Request) string {
    k := prefix + ":" + r.URL.Path
    if r.URL.RawQuery != "" {
        k += "?" + r.URL.RawQuery
    }
    return k
}

// bodyRecorder copies what the handler writes, up to limit bytes.
type bodyRecorder struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (w *bodyRecorder) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
    if !w.overflow {
        if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
            w.overflow = true
            w.buf.Reset()
        } else {
            w.buf.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

func storable(h http.Header, w *bodyRecorder) bool {
    return w.status == http.StatusOK && !w.overflow &&
        !strings.Contains(h.Get(echo.HeaderCacheControl), "no-store")
}

// NewResponseCache serves repeated auction reads from Redis for cfg.TTL.
// Only 200 responses the handler did not mark with NoStore are kept, and
// bodies over MaxBodyBytes are served but not stored.  Redis errors fall
// through to the handler.
func NewResponseCache(cfg config.CacheConfig, rdb redis.UniversalClient) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 2 * time.Second
    }
    log := logger.Component("cache")

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            r := c.Request()
            if !cfg.Methods[r.Method] {
                return next(c)
            }
            key := cacheKey(cfg.Prefix, r)

            if bs, err := rdb.Get(r.Context(), key).Bytes(); err == nil {
                var hit cachedResponse
                if json.Unmarshal(bs, &hit) == nil {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(hit.Status, hit.ContentType, hit.Body)
                }
            } else if err != redis.Nil {
                log.Debug().Err(err).Str("key", key).Msg("cache lookup failed")
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if !storable(c.Response().Header(), rec) {
                return nil
            }

            payload, err := json.Marshal(cachedResponse{
                Status:      rec.status,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        rec.buf.Bytes(),
            })
            if err != nil {
                return nil
            }
            ctx, cancel := context.WithTimeout(context.Background(), time.Second)
            defer cancel()
            if err := rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
                log.Debug().Err(err).Str("key", key).Msg("cache store failed")
            }
            return nil
        }
    }
}
