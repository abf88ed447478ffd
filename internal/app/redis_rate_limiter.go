package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window counter: the first INCR of a window arms the expiry, PTTL
// reports how much of the window is left.
var webhookWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  remaining = tonumber(ARGV[1])
end
return {hits, remaining}
`)

// RedisWebhookRateLimiter throttles webhook ingestion per watched account
// with a Redis fixed-window counter. The limiter owns its budget and window;
// callers only present the account. A nil limiter, a nil client or a zero
// budget allows everything, so ingestion degrades gracefully when Redis is
// not configured.
type RedisWebhookRateLimiter struct {
	client redis.UniversalClient
	prefix string
	budget int
	window time.Duration
}

// NewRedisWebhookRateLimiter creates a limiter allowing budget deliveries per
// account per window.
func NewRedisWebhookRateLimiter(client redis.UniversalClient, prefix string, budget int, window time.Duration) *RedisWebhookRateLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "adapter:rate_limit"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWebhookRateLimiter{
		client: client,
		prefix: trimmed,
		budget: budget,
		window: window,
	}
}

// Allow counts one delivery for accountID and reports whether it fits the
// window budget. A refusal carries the whole-second Retry-After hint for the
// caller's response.
func (r *RedisWebhookRateLimiter) Allow(ctx context.Context, accountID string) (allowed bool, retryAfter int, err error) {
	if r == nil || r.client == nil || r.budget <= 0 {
		return true, 0, nil
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return true, 0, nil
	}

	key := fmt.Sprintf("%s:webhook:%s", r.prefix, accountID)
	raw, err := webhookWindowScript.Run(ctx, r.client, []string{key}, r.window.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	hits, remainingMs, err := parseWindowReply(raw)
	if err != nil {
		return false, 0, err
	}

	if hits <= int64(r.budget) {
		return true, 0, nil
	}
	retryAfter = int((remainingMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

func parseWindowReply(raw interface{}) (hits, remainingMs int64, err error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply shape: %T", raw)
	}
	hits, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit hit count type: %T", values[0])
	}
	remainingMs, ok = values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit ttl type: %T", values[1])
	}
	return hits, remainingMs, nil
}
