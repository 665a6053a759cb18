package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/live-auction/internal/config"
    "github.com/iliyamo/live-auction/internal/metrics"
    "github.com/iliyamo/live-auction/internal/utils"
)

func newRedis(t *testing.T) *redis.Client {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { rdb.Close() })
    return rdb
}

func TestJWTAuth(t *testing.T) {
    e := echo.New()
    e.GET("/me", func(c echo.Context) error {
        uid, ok := UserID(c)
        require.True(t, ok)
        id, _ := Identity(c)
        return c.JSON(http.StatusOK, echo.Map{"id": uid, "email": id.Email})
    }, JWTAuth("secret"))

    tok, err := utils.NewAccessToken("secret", utils.Identity{UserID: 3, Email: "x@y.z"}, 5)
    require.NoError(t, err)

    tests := []struct {
        name   string
        header string
        status int
    }{
        {"valid", "Bearer " + tok.Token, http.StatusOK},
        {"missing", "", http.StatusUnauthorized},
        {"not_bearer", "Basic abc", http.StatusUnauthorized},
        {"bad_token", "Bearer abc.def.ghi", http.StatusUnauthorized},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            req := httptest.NewRequest(http.MethodGet, "/me", nil)
            if tt.header != "" {
                req.Header.Set("Authorization", tt.header)
            }
            rec := httptest.NewRecorder()
            e.ServeHTTP(rec, req)
            assert.Equal(t, tt.status, rec.Code)
            if tt.status == http.StatusOK {
                assert.JSONEq(t, `{"id":3,"email":"x@y.z"}`, rec.Body.String())
            }
        })
    }
}

func TestTokenBucket_Throttles(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            time.Hour,
        Prefix:         "rl",
    }
    m := metrics.NewMetrics("test")
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, NewTokenBucket(cfg, rdb, m))

    codes := make([]int, 0, 3)
    for i := 0; i < 3; i++ {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
        codes = append(codes, rec.Code)
    }
    assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestResponseCache_HitAndPerPath(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.CacheConfig{
        Enabled:      true,
        Methods:      map[string]bool{"GET": true},
        TTL:          time.Minute,
        Prefix:       "cache",
        MaxBodyBytes: 1 << 20,
    }
    var calls int32
    e := echo.New()
    e.GET("/v1/auctions/:id", func(c echo.Context) error {
        atomic.AddInt32(&calls, 1)
        return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id")})
    }, NewResponseCache(cfg, rdb))

    get := func(path string) *httptest.ResponseRecorder {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
        return rec
    }

    first := get("/v1/auctions/1")
    assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
    second := get("/v1/auctions/1")
    assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
    assert.JSONEq(t, first.Body.String(), second.Body.String())

    other := get("/v1/auctions/2")
    assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"id":"2"}`, other.Body.String())
    assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenBucket_BidsKeyedOnBidder(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            time.Hour,
        Prefix:         "rl",
    }
    e := echo.New()
    e.POST("/v1/auctions/:id/bids", func(c echo.Context) error {
        return c.NoContent(http.StatusAccepted)
    }, JWTAuth("secret"), NewTokenBucket(cfg, rdb, metrics.NewMetrics("test")))

    token := func(uid uint64) string {
        tok, err := utils.NewAccessToken("secret", utils.Identity{UserID: uid, Email: "b@x.y"}, 5)
        require.NoError(t, err)
        return tok.Token
    }
    bid := func(tok, auction, ip string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodPost, "/v1/auctions/"+auction+"/bids", nil)
        req.Header.Set("Authorization", "Bearer "+tok)
        req.Header.Set(echo.HeaderXRealIP, ip)
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    alice := token(1)
    assert.Equal(t, http.StatusAccepted, bid(alice, "1", "10.0.0.1").Code)
    assert.Equal(t, http.StatusAccepted, bid(alice, "2", "10.0.0.2").Code)
    limited := bid(alice, "3", "10.0.0.3")
    assert.Equal(t, http.StatusTooManyRequests, limited.Code, "new address and auction, same bidder")
    assert.NotEmpty(t, limited.Header().Get("Retry-After"))
    assert.JSONEq(t, `{"error":"Too many requests","retryAfter":3600}`, limited.Body.String())

    assert.Equal(t, http.StatusAccepted, bid(token(2), "3", "10.0.0.1").Code, "another bidder on a used address")
}

func TestResponseCache_SkipsNoStore(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.CacheConfig{
        Enabled:      true,
        Methods:      map[string]bool{"GET": true},
        TTL:          time.Minute,
        Prefix:       "cache",
        MaxBodyBytes: 1 << 20,
    }
    var calls int32
    e := echo.New()
    e.GET("/v1/auctions/:id", func(c echo.Context) error {
        n := atomic.AddInt32(&calls, 1)
        if c.Param("id") == "1" {
            NoStore(c)
        }
        return c.JSON(http.StatusOK, echo.Map{"call": n})
    }, NewResponseCache(cfg, rdb))

    get := func(path string) *httptest.ResponseRecorder {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
        return rec
    }

    assert.JSONEq(t, `{"call":1}`, get("/v1/auctions/1").Body.String())
    open := get("/v1/auctions/1")
    assert.Equal(t, "MISS", open.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"call":2}`, open.Body.String())

    get("/v1/auctions/2")
    settled := get("/v1/auctions/2")
    assert.Equal(t, "HIT", settled.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"call":3}`, settled.Body.String())
    assert.Equal(t, echo.MIMEApplicationJSON, settled.Header().Get(echo.HeaderContentType))
    exists, err := rdb.Exists(context.Background(), "cache:/v1/auctions/1").Result()
    require.NoError(t, err)
    assert.Zero(t, exists)
}

func TestResponseCache_ErrorsNotStored(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
    var calls int32
    e := echo.New()
    e.GET("/v1/auctions/:id", func(c echo.Context) error {
        atomic.AddInt32(&calls, 1)
        return c.JSON(http.StatusNotFound, echo.Map{"error": "Auction not found"})
    }, NewResponseCache(cfg, rdb))

    for i := 0; i < 2; i++ {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auctions/9", nil))
        assert.Equal(t, http.StatusNotFound, rec.Code)
    }
    assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
    e := echo.New()
    e.Use(RequestLogger())
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
    assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

    req := httptest.NewRequest(http.MethodGet, "/x", nil)
    req.Header.Set(echo.HeaderXRequestID, "abc")
    rec = httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    assert.Equal(t, "abc", rec.Header().Get(echo.HeaderXRequestID))
}
