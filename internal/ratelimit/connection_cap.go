package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var connCapScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// ConnectionCap limits how many connections one address may open per
// window.  The counter is a fixed window: it starts with the first
// connection and expires Window later.
type ConnectionCap struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
}

func NewConnectionCap(rdb redis.UniversalClient, limit int, window time.Duration) *ConnectionCap {
	return &ConnectionCap{rdb: rdb, limit: limit, window: window}
}

// Key is the counter key for an address.
func (c *ConnectionCap) Key(addr string) string { return "ws:ip:" + addr }

// Admit counts a new connection from addr.  Redis errors admit the
// connection.
func (c *ConnectionCap) Admit(ctx context.Context, addr string) (bool, error) {
	if c == nil || c.rdb == nil || c.limit <= 0 {
		return true, nil
	}
	n, err := connCapScript.Run(ctx, c.rdb, []string{c.Key(addr)}, c.window.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("connection cap %s: %w", addr, err)
	}
	return n <= int64(c.limit), nil
}
