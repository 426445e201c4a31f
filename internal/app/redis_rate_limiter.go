package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// transferAllowanceScript admits an attempt only while the sender is below its limit.
// Refused attempts are not counted, so a sender that keeps retrying is not locked out
// past the end of the window. Returns {admitted, count, ttl_ms}.
var transferAllowanceScript = redis.NewScript(`
local limit = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[1])
  end
  return {0, current, ttl}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {1, current, ttl}
`)

// RateLimiter admits transfers per sender in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, sender string, limit int, window time.Duration) (allowed bool, retryAfterSeconds int, err error)
}

// RedisRateLimiter keeps one transfer counter per sender IBAN in Redis so every service
// instance shares the same allowance.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "ledger:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: trimmedPrefix}
}

func (r *RedisRateLimiter) counterKey(sender string) string {
	return fmt.Sprintf("%s:transfer:%s", r.prefix, sender)
}

// Allow admits one transfer for sender unless it already used limit transfers in the
// current window. Senders are keyed by normalized IBAN, so "de89 3704..." and
// "DE893704..." share a counter. A nil limiter, blank sender or non-positive limit
// admits everything.
func (r *RedisRateLimiter) Allow(ctx context.Context, sender string, limit int, window time.Duration) (bool, int, error) {
	sender = NormalizeIban(sender)
	if r == nil || r.client == nil || sender == "" || limit <= 0 || window <= 0 {
		return true, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	raw, err := transferAllowanceScript.Run(ctx, r.client, []string{r.counterKey(sender)}, windowMs, limit).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	admitted, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter flag type: %T", values[0])
	}
	ttlMs, ok := values[2].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	if admitted == 1 {
		return true, 0, nil
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

// TransferRateLimit is the per-sender allowance applied to transfers.
type TransferRateLimit struct {
	Limiter RateLimiter
	Limit   int
	Window  time.Duration
}

// Check admits one transfer for fromIban. It fails with ErrRateLimited once the
// allowance for the current window is used up. Limiter errors fail open.
func (l TransferRateLimit) Check(ctx context.Context, fromIban string) (retryAfterSeconds int, err error) {
	if l.Limiter == nil || l.Limit <= 0 {
		return 0, nil
	}
	allowed, retryAfter, err := l.Limiter.Allow(ctx, fromIban, l.Limit, l.Window)
	if err != nil {
		log.Printf("level=warn component=rate_limiter msg=\"rate limit check failed; allowing transfer\" from_iban=%s err=%v", fromIban, err)
		return 0, nil
	}
	if !allowed {
		return retryAfter, fmt.Errorf("%w: retry after %d seconds", ErrRateLimited, retryAfter)
	}
	return 0, nil
}
