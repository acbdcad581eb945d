package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter per client key backed by Redis. It is
// best-effort abuse mitigation, not a security boundary: a Redis outage fails
// open and distributed clients can bypass it.
type Limiter struct {
	client *redis.Client
	window time.Duration
	max    int
}

func NewLimiter(client *redis.Client, window time.Duration, max int) *Limiter {
	return &Limiter{client: client, window: window, max: max}
}

// checkScript increments the window counter atomically. Once the limit is
// reached further checks neither increment the counter nor extend the window.
// Returns {allowed, remaining, pttl_ms}.
var checkScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return {0, 0, redis.call("PTTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, tonumber(ARGV[1]) - current, redis.call("PTTL", KEYS[1])}
`)

// Check records one attempt for key and reports whether it is allowed.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	redisKey := fmt.Sprintf("ratelimit:booking:%s", key)

	vals, err := checkScript.Run(ctx, l.client, []string{redisKey},
		l.max, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		// Fail open: the limiter must never block bookings on its own outage.
		return Result{Allowed: true, Remaining: l.max}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(vals) != 3 {
		return Result{Allowed: true, Remaining: l.max}, fmt.Errorf("rate limit check: unexpected reply %v", vals)
	}

	resetAt := time.Now().Add(l.window)
	if vals[2] > 0 {
		resetAt = time.Now().Add(time.Duration(vals[2]) * time.Millisecond)
	}

	return Result{
		Allowed:   vals[0] == 1,
		Remaining: int(vals[1]),
		ResetAt:   resetAt,
	}, nil
}
