package api

import (
	"github.com/fathima-sithara/roomrent-chat/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Validator middleware.TokenValidator
	// Limiter is optional; nil disables HTTP rate limiting.
	Limiter   *middleware.RateLimiter
	WSHandler func(*websocket.Conn)
	// WSConfig tunes the upgrader; zero value uses fiber defaults.
	WSConfig  websocket.Config
	// AccessLog enables the fiber request logger.
	AccessLog bool
	// AllowOrigins is a comma separated CORS origin list; empty disables CORS.
	AllowOrigins string
}

func NewServer(h *Handlers, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	if opts.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,DELETE,OPTIONS",
		}))
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/v1")
	api.Get("/health", h.health)

	if opts.WSHandler != nil {
		api.Get("/ws", middleware.OptionalJWT(opts.Validator), upgradeRequired, websocket.New(opts.WSHandler, opts.WSConfig))
	}

	guard := []fiber.Handler{middleware.JWTAuth(opts.Validator)}
	if opts.Limiter != nil {
		guard = append(guard, opts.Limiter.MiddlewareByKey(middleware.UserID))
	}
	protected := func(next fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, guard...), next)
	}
	api.Get("/chats/:peer/messages", protected(h.history)...)
	api.Delete("/chats/:peer", protected(h.deleteConversation)...)
	api.Get("/conversations", protected(h.conversations)...)
	api.Get("/unread", protected(h.unread)...)
	api.Get("/presence", protected(h.onlineUsers)...)
	api.Get("/presence/:user_id", protected(h.userPresence)...)

	return app
}

func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
