// Package ratelimit implements Redis-backed admission control for the
// realtime channel: a sliding-window action limit and a per-address
// connection cap.  Both fail open when Redis is unavailable.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the result of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration

	key    string
	member string
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now_ms, member)
		redis.call('PEXPIRE', key, window_ms)
		return { 1, limit - count - 1, 0 }
	end

	local retry_ms = 0
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry_ms = tonumber(oldest[2]) + window_ms - now_ms
		if retry_ms < 0 then retry_ms = 0 end
	end
	return { 0, 0, retry_ms }
`)

// SlidingWindow allows at most Limit events per key in any trailing
// Window.  Each allowed event is a sorted-set member scored by its
// timestamp; members older than the window are trimmed on every check.
type SlidingWindow struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindow keys counters as "{prefix}:{key}".
func NewSlidingWindow(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

// Allow records one event for key if the window has room.  On Redis
// errors the event is allowed and the error returned for logging.
func (s *SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if s == nil || s.rdb == nil || s.limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	member := uuid.NewString()
	args := []interface{}{
		s.now().UnixMilli(),
		s.window.Milliseconds(),
		s.limit,
		member,
	}
	full := s.prefix + ":" + key
	vals, err := slidingWindowScript.Run(ctx, s.rdb, []string{full}, args...).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Decision{Allowed: true}, fmt.Errorf("sliding window %s: unexpected reply %v", key, vals)
	}
	d := Decision{
		Allowed:    vals[0] == 1,
		Remaining:  int(vals[1]),
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}
	if d.Allowed {
		d.key, d.member = full, member
	}
	return d, nil
}

// Undo removes the event an allowing Decision recorded.  Decisions that
// recorded nothing are ignored.
func (s *SlidingWindow) Undo(ctx context.Context, d Decision) error {
	if s == nil || s.rdb == nil || d.member == "" {
		return nil
	}
	return s.rdb.ZRem(ctx, d.key, d.member).Err()
}
