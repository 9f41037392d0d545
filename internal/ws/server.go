package ws

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Server struct {
	hub  *Hub
	deps Deps
	opts Options
	log  *zap.Logger
	// base context for event handling; not tied to any one connection so
	// in-flight writes finish after a disconnect
	ctx context.Context
}

func NewServer(ctx context.Context, hub *Hub, deps Deps, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Out == nil {
		deps.Out = hub
	}
	if deps.Log == nil {
		deps.Log = log
	}
	return &Server{hub: hub, deps: deps, opts: opts.withDefaults(), log: log, ctx: ctx}
}

func (s *Server) Hub() *Hub { return s.hub }

// HandleWS is the websocket.Handler used with websocket.New(). A subject
// stored in Locals by the upgrade middleware pins the identity join may claim.
func (s *Server) HandleWS(conn *websocket.Conn) {
	authUser, _ := conn.Locals("user_id").(string)
	s.Serve(conn, authUser)
}

// Serve runs one connection to completion.
func (s *Server) Serve(conn Conn, authUser string) {
	session := NewSession(uuid.NewString(), authUser, s.deps)
	c := newClient(conn, session, s.opts, s.log)
	s.log.Debug("connection opened", zap.String("handle", session.Handle()), zap.String("auth_user", authUser))
	serve(s.ctx, s.hub, c)
	s.log.Debug("connection closed", zap.String("handle", session.Handle()), zap.String("user_id", session.UserID()))
}
