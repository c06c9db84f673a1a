/**
 * @description
 * Redis-backed fixed-window rate limiter guarding the public payment-link
 * redemption endpoint. Redemption is the only unauthenticated mutation the
 * service exposes, so token guessing and replay hammering are throttled per
 * caller identity (token plus client IP).
 *
 * @notes
 * - The count-and-expire pair runs as a Lua script so the window TTL is set
 *   atomically with the first increment.
 * - Fail-open: if Redis is unreachable the request is allowed and the error
 *   logged. Availability of redemption beats strictness of the throttle.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`

// RedemptionLimiter throttles payment-link redemption attempts.
type RedemptionLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int64
	window    time.Duration
	script    *redis.Script
}

// NewRedemptionLimiter creates a limiter allowing `limit` attempts per
// `window` for each distinct key.
func NewRedemptionLimiter(client *redis.Client, keyPrefix string, limit int64, window time.Duration) *RedemptionLimiter {
	return &RedemptionLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
		script:    redis.NewScript(rateLimitScript),
	}
}

// Allow reports whether another redemption attempt is permitted for the key.
func (l *RedemptionLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	redisKey := fmt.Sprintf("%s:%s", l.keyPrefix, key)
	count, err := l.script.Run(ctx, l.client, []string{redisKey}, l.window.Milliseconds()).Int64()
	if err != nil {
		log.Printf("level=error component=rate_limiter msg=\"redis unavailable, allowing request\" error=%v", err)
		return true
	}
	return count <= l.limit
}
