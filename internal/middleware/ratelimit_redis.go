package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// windowScript bumps the counter and arms its expiry in one step. A counter
// found without a TTL is re-armed so a key can never pin a user at the limit.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimiter allows Limit requests per Window for each key, counted in Redis.
type RateLimiter struct {
	rdb    redis.Scripter
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(r redis.Scripter, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: r, prefix: prefix, limit: int64(limit), window: window}
}

// Hit records one request for key and returns the count in the current window.
func (r *RateLimiter) Hit(c *fiber.Ctx, key string) (int64, error) {
	return windowScript.Run(c.UserContext(), r.rdb, []string{r.prefix + ":" + key}, r.window.Milliseconds()).Int64()
}

// MiddlewareByKey limits requests per keyFunc result, falling back to the
// client IP when the key is empty. Redis errors fail the request.
func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := keyFunc(c)
		if key == "" {
			key = c.IP()
		}
		count, err := r.Hit(c, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "rate limiter error"})
		}
		remaining := r.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.FormatInt(r.limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > r.limit {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(r.window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
