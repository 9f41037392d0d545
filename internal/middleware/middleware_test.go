package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type staticValidator map[string]string

func (v staticValidator) Validate(token string) (string, error) {
	if sub, ok := v[token]; ok {
		return sub, nil
	}
	return "", errors.New("bad token")
}

func whoami(c *fiber.Ctx) error { return c.SendString(UserID(c)) }

func TestJWTAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", JWTAuth(staticValidator{"good": "tenant-1"}), whoami)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"should accept a valid bearer token", "Bearer good", http.StatusOK},
		{"should reject a missing header", "", http.StatusUnauthorized},
		{"should reject a malformed header", "good", http.StatusUnauthorized},
		{"should reject an invalid token", "Bearer bad", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			r := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(r)
			req.NoError(err)
			req.Equal(tc.status, resp.StatusCode)
		})
	}
}

func TestOptionalJWT(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", OptionalJWT(staticValidator{"good": "tenant-1"}), whoami)

	t.Run("should pass anonymous requests through", func(t *testing.T) {
		req := require.New(t)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
		req.NoError(err)
		req.Equal(http.StatusOK, resp.StatusCode)
	})

	t.Run("should read the token from the query", func(t *testing.T) {
		req := require.New(t)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))
		req.NoError(err)
		req.Equal(http.StatusOK, resp.StatusCode)
	})

	t.Run("should reject a bad token", func(t *testing.T) {
		req := require.New(t)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil))
		req.NoError(err)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

// scriptRedis runs the window script's contract in memory: bump the counter
// and arm the expiry when the key is new or has none.
type scriptRedis struct {
	redis.Scripter
	mu     sync.Mutex
	counts map[string]int64
	ttl    map[string]time.Duration
	fail   bool
}

func newScriptRedis() *scriptRedis {
	return &scriptRedis{counts: map[string]int64{}, ttl: map[string]time.Duration{}}
}

func (r *scriptRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if r.fail {
		return redis.NewCmdResult(nil, errors.New("redis down"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := keys[0]
	r.counts[key]++
	if r.counts[key] == 1 || r.ttl[key] <= 0 {
		r.ttl[key] = time.Duration(args[0].(int64)) * time.Millisecond
	}
	return redis.NewCmdResult(r.counts[key], nil)
}

func TestRateLimiter(t *testing.T) {
	limited := func(rl *RateLimiter) *fiber.App {
		app := fiber.New()
		app.Get("/x", rl.MiddlewareByKey(func(c *fiber.Ctx) string { return "u1" }), whoami)
		return app
	}

	t.Run("should reject requests past the limit", func(t *testing.T) {
		req := require.New(t)
		rdb := newScriptRedis()
		app := limited(NewRateLimiter(rdb, "rl", 2, time.Minute))

		for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
			req.NoError(err)
			req.Equal(want, resp.StatusCode, "request %d", i)
			if want == http.StatusTooManyRequests {
				req.Equal("0", resp.Header.Get("X-RateLimit-Remaining"))
				req.Equal("60", resp.Header.Get(fiber.HeaderRetryAfter))
			}
		}
		req.Equal(int64(3), rdb.counts["rl:u1"])
		req.Equal(time.Minute, rdb.ttl["rl:u1"])
	})

	t.Run("should re-arm a counter left without an expiry", func(t *testing.T) {
		req := require.New(t)
		rdb := newScriptRedis()
		rdb.counts["rl:u1"] = 5
		app := limited(NewRateLimiter(rdb, "rl", 10, 30*time.Second))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
		req.NoError(err)
		req.Equal(http.StatusOK, resp.StatusCode)
		req.Equal(30*time.Second, rdb.ttl["rl:u1"])
	})

	t.Run("should fail closed when redis errors", func(t *testing.T) {
		req := require.New(t)
		rdb := newScriptRedis()
		rdb.fail = true
		app := limited(NewRateLimiter(rdb, "rl", 2, time.Minute))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
		req.NoError(err)
		req.Equal(http.StatusInternalServerError, resp.StatusCode)
		req.Empty(rdb.counts)
	})
}
