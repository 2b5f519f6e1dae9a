// Package ratelimit is a sliding window limiter shared by every API replica
// through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Each key is a sorted set of request members scored by arrival time in
// milliseconds. The script drops members older than the window, then admits
// the request only while the set is below the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
end
return 0
`)

// Limiter admits at most Limit requests per key within Window.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
	limit  int
	window time.Duration
	now    func() time.Time
}

// New returns a limiter. A limit of zero or less admits everything.
func New(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func key(subject string) string {
	return fmt.Sprintf("rl:%s", subject)
}

// Allow reports whether one more request for subject fits in the window.
// Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, subject string) bool {
	if l.limit <= 0 {
		return true
	}

	now := l.now().UnixMilli()
	result, err := slidingWindowScript.Run(ctx, l.client, []string{key(subject)},
		now, l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64()
	if err != nil {
		l.logger.Error("rate limiter script failed", "error", err, "subject", subject)
		return true
	}

	if result == 0 {
		l.logger.Debug("rate limited", "subject", subject, "limit", l.limit)
		return false
	}
	return true
}
