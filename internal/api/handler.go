package api

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/cache"
	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/middleware"
	"github.com/fathima-sithara/roomrent-chat/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Queries interface {
	Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	Unread(ctx context.Context, userID string) (*service.Unread, error)
	History(ctx context.Context, userID, peerID string, limit int64, before time.Time) ([]*domain.Message, error)
	DeleteConversation(ctx context.Context, userID, peerID string) (int64, error)
}

type PresenceReader interface {
	IsOnline(userID string) bool
	OnlineUserIDs() []string
}

type LastSeenReader interface {
	Get(ctx context.Context, userID string) (*cache.Presence, error)
}

type Handlers struct {
	qry      Queries
	presence PresenceReader
	lastSeen LastSeenReader
	validate *validator.Validate
	log      *zap.Logger
}

func NewHandlers(qry Queries, presence PresenceReader, lastSeen LastSeenReader, log *zap.Logger) *Handlers {
	return &Handlers{
		qry:      qry,
		presence: presence,
		lastSeen: lastSeen,
		validate: validator.New(),
		log:      log,
	}
}

type historyQuery struct {
	Peer   string `validate:"required,max=128"`
	Limit  int64  `query:"limit" validate:"gte=0"`
	Before string `query:"before" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) history(c *fiber.Ctx) error {
	var q historyQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid query"})
	}
	q.Peer = c.Params("peer")
	if err := h.validate.Struct(q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var before time.Time
	if q.Before != "" {
		t, err := time.Parse(time.RFC3339Nano, q.Before)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "before must be RFC3339"})
		}
		before = t
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	msgs, err := h.qry.History(ctx, middleware.UserID(c), q.Peer, q.Limit, before)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) deleteConversation(c *fiber.Ctx) error {
	user := middleware.UserID(c)
	peer := c.Params("peer")

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	n, err := h.qry.DeleteConversation(ctx, user, peer)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "deleted": n})
}

func (h *Handlers) conversations(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	out, err := h.qry.Conversations(ctx, middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": out})
}

func (h *Handlers) unread(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	u, err := h.qry.Unread(ctx, middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": u})
}

func (h *Handlers) onlineUsers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "data": h.presence.OnlineUserIDs()})
}

func (h *Handlers) userPresence(c *fiber.Ctx) error {
	uid := c.Params("user_id")
	resp := fiber.Map{"user_id": uid, "online": h.presence.IsOnline(uid)}
	if h.lastSeen != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		p, err := h.lastSeen.Get(ctx, uid)
		if err != nil {
			h.log.Warn("read last seen", zap.String("user_id", uid), zap.Error(err))
		} else if p != nil {
			resp["last_seen"] = p.LastSeen
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "data": resp})
}

func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
