package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired members, then adds now if the window
// has room. Returns 1 when admitted, 0 otherwise.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. window_start)
local count = redis.call('ZCARD', key)
if count >= limit then
	return 0
end
redis.call('ZADD', key, now, now .. ':' .. redis.call('INCR', key .. ':seq'))
redis.call('PEXPIRE', key, window_ms + 1000)
redis.call('PEXPIRE', key .. ':seq', window_ms + 1000)
return 1
`)

// RedisSlidingWindow shares one admission budget per session across every
// instance pointing at the same Redis. When Redis is unreachable it falls
// back to the session's local Window.
type RedisSlidingWindow struct {
	rdb      redis.Scripter
	local    *SlidingWindow
	prefix   string
	log      *slog.Logger
	degraded atomic.Bool
}

// NewRedisSlidingWindow wraps local with a Redis-backed window. local
// supplies width and the (runtime adjustable) limit.
func NewRedisSlidingWindow(rdb redis.Scripter, local *SlidingWindow, log *slog.Logger) *RedisSlidingWindow {
	return &RedisSlidingWindow{rdb: rdb, local: local, prefix: "rsl:admission:", log: log}
}

// Admit implements Limiter.
func (r *RedisSlidingWindow) Admit(ctx context.Context, sessionID string, w *Window, now time.Time) bool {
	width := r.local.Width()
	nowMS := now.UnixMilli()
	res, err := slidingWindowScript.Run(ctx, r.rdb, []string{r.prefix + sessionID},
		nowMS,
		nowMS-width.Milliseconds(),
		r.local.Limit(),
		width.Milliseconds(),
	).Int()
	if err != nil {
		if !r.degraded.Swap(true) {
			r.log.Warn("redis admission unavailable, using local window", slog.String("error", err.Error()))
		}
		return r.local.Admit(ctx, sessionID, w, now)
	}
	if r.degraded.Swap(false) {
		r.log.Info("redis admission restored")
	}
	if res == 1 {
		// Keep the local window warm so a fallback starts from real history.
		w.times = append(w.times, now)
		w.expire(now, width)
		return true
	}
	return false
}

// Key returns the Redis key used for sessionID.
func (r *RedisSlidingWindow) Key(sessionID string) string {
	return r.prefix + sessionID
}
