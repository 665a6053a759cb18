package ratelimit

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
)

// Admission applies the realtime limits: sockets per address at connect
// time, and actions per address and per bidder afterwards.  A rejection
// has no side effect beyond the counter that tripped.
type Admission struct {
	enabled bool
	conns   *ConnectionCap
	perIP   *SlidingWindow
	perUser *SlidingWindow
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

func NewAdmission(rdb redis.UniversalClient, cfg config.AdmissionConfig, m *metrics.Metrics) *Admission {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &Admission{
		enabled: cfg.Enabled && rdb != nil,
		conns:   NewConnectionCap(rdb, cfg.ConnPerIP, cfg.ConnWindow),
		perIP:   NewSlidingWindow(rdb, "ratelimit:ip", cfg.ActionsPerIP, cfg.ActionWindow),
		perUser: NewSlidingWindow(rdb, "ratelimit:user", cfg.ActionsPerUser, cfg.ActionWindow),
		metrics: m,
		log:     logger.Component("admission"),
	}
}

// AdmitConnection reports whether addr may open another socket.
func (a *Admission) AdmitConnection(ctx context.Context, addr string) bool {
	if !a.enabled {
		return true
	}
	ok, err := a.conns.Admit(ctx, addr)
	if err != nil {
		a.log.Warn().Err(err).Msg("connection cap unavailable, admitting")
	}
	if !ok {
		a.metrics.RateLimitRejected.WithLabelValues("connection").Inc()
	}
	return ok
}

// AdmitAction checks the per-address window and, for identified
// callers, the per-bidder window.  It returns a message for the caller
// when rejected.  An action refused per bidder is not counted against
// the address.
func (a *Admission) AdmitAction(ctx context.Context, addr string, userID *uint64) (bool, string) {
	if !a.enabled {
		return true, ""
	}
	ip, err := a.perIP.Allow(ctx, addr)
	if err != nil {
		a.log.Warn().Err(err).Msg("ip rate limit unavailable, admitting")
	}
	if !ip.Allowed {
		a.metrics.RateLimitRejected.WithLabelValues("ip").Inc()
		return false, "Too many requests from this IP"
	}
	if userID == nil {
		return true, ""
	}
	d, err := a.perUser.Allow(ctx, strconv.FormatUint(*userID, 10))
	if err != nil {
		a.log.Warn().Err(err).Msg("user rate limit unavailable, admitting")
	}
	if !d.Allowed {
		// the address window already counted this action
		if err := a.perIP.Undo(ctx, ip); err != nil {
			a.log.Warn().Err(err).Msg("ip rate limit undo failed")
		}
		a.metrics.RateLimitRejected.WithLabelValues("user").Inc()
		return false, "Too many requests from this user"
	}
	return true, ""
}
