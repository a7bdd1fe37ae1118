package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window counter: the first INCR in a window arms the expiry, and the
// PTTL is returned so callers can surface an accurate Retry-After.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Sub-second windows are rounded up so a key never expires between the INCR
// and the PTTL read.
const rateLimitWindowFloor = time.Second

const defaultRateLimitPrefix = "atm:rate_limit"

// RedisRateLimiter is a distributed fixed-window limiter shared by the OTP
// issue and verify paths across service replicas.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit spends one unit of the subject's budget within the scope's
// current window. It reports the running count and the whole seconds until
// the window resets. A nil client or non-positive limit disables the check.
func (r *RedisRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	if window < rateLimitWindowFloor {
		window = rateLimitWindowFloor
	}
	windowMs := window.Milliseconds()

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	reply, err := rateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	current, ttlMs, err := parseLimiterReply(reply)
	if err != nil {
		return 0, 0, err
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int((ttlMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(current), retryAfter, nil
}

// parseLimiterReply unpacks the {count, ttl} pair the limiter script returns.
func parseLimiterReply(reply interface{}) (count int64, ttlMs int64, err error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected limiter reply shape: %T", reply)
	}
	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected limiter count type: %T", values[0])
	}
	ttlMs, ok = values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected limiter ttl type: %T", values[1])
	}
	return count, ttlMs, nil
}
