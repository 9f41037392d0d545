package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// LocalUserID is the fiber Locals key holding the verified subject.
const LocalUserID = "user_id"

type TokenValidator interface {
	Validate(token string) (string, error)
}

// JWTAuth requires a valid bearer token.
func JWTAuth(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearer(c.Get("Authorization"))
		if !ok {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		sub, err := v.Validate(token)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(LocalUserID, sub)
		return c.Next()
	}
}

// OptionalJWT verifies a token from the Authorization header or the token
// query parameter when one is present. Browsers cannot set headers on a
// websocket handshake, hence the query fallback.
func OptionalJWT(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearer(c.Get("Authorization"))
		if !ok {
			token = c.Query("token")
		}
		if token == "" || v == nil {
			return c.Next()
		}
		sub, err := v.Validate(token)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(LocalUserID, sub)
		return c.Next()
	}
}

// UserID returns the subject stored by JWTAuth or OptionalJWT.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalUserID).(string)
	return uid
}

func bearer(hdr string) (string, bool) {
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
