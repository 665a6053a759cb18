package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/handler"    // import the handlers that implement the endpoints
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/middleware" // import middleware for JWT authentication, rate limiting and caching
	"github.com/iliyamo/live-auction/internal/realtime"
)

// Deps is everything the HTTP surface is built from.  Redis may be nil,
// in which case rate limiting and caching are disabled.
type Deps struct {
	Cfg       config.Config
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     redis.UniversalClient
	Metrics   *metrics.Metrics

	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Users    *handler.UserHandler
	Auctions *handler.AuctionHandler
	Realtime *realtime.Handler
}

// New builds the Echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLogger())
	e.Use(d.Metrics.Middleware())

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterUsers(e, d)
	RegisterAuctions(e, d)
	return e
}

// RegisterRoutes registers the operational endpoints that do not require
// authentication: the health check, Prometheus metrics and the realtime
// channel (which authenticates during its own handshake).
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Load balancers and monitoring probe /healthz.
	e.GET("/healthz", d.Health.Health)
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	e.GET("/v1/ws", d.Realtime.Serve)
}

// RegisterAuth registers login and the protected /v1/me endpoint.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.Use(middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Metrics))
	g.POST("/login", d.Auth.Login)

	e.GET("/v1/me", d.Auth.Me, middleware.JWTAuth(d.Cfg.JWTSecret))
}

// RegisterUsers registers the user endpoints.  They are open, as user
// creation precedes any token.
func RegisterUsers(e *echo.Echo, d Deps) {
	g := e.Group("/v1/users", middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Metrics))
	g.POST("", d.Users.Create)
	g.GET("", d.Users.List)
	g.GET("/:id", d.Users.Get)
}

// RegisterAuctions registers the auction endpoints.  Reads are public
// and auction reads pass through the short-lived response cache, which
// skips auctions still open for bidding; the bid history grows with
// every commit and is never cached.  Writes require a valid access
// token.
func RegisterAuctions(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Metrics)
	cache := middleware.NewResponseCache(d.Cache, d.Redis)
	auth := middleware.JWTAuth(d.Cfg.JWTSecret)

	g := e.Group("/v1/auctions")
	g.GET("", d.Auctions.List, limit, cache)
	g.GET("/:id", d.Auctions.Get, limit, cache)
	g.GET("/:id/bids", d.Auctions.ListBids, limit)

	// JWTAuth goes first so the bucket keys on the bidder.
	g.POST("", d.Auctions.Create, auth, limit)
	g.POST("/:id/bids", d.Auctions.PlaceBid, auth, limit)
	g.PUT("/:id/activate", d.Auctions.Activate, auth, limit)
	g.PUT("/:id/end", d.Auctions.End, auth, limit)
}
