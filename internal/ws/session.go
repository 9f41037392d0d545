package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/metrics"
	"go.uber.org/zap"
)

// State is where a session is in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateAnonymous
	StateIdentified
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateIdentified:
		return "identified"
	}
	return "disconnected"
}

type Coordinator interface {
	OnSend(ctx context.Context, senderID, receiverID, body string) (*domain.Message, error)
	OnJoin(ctx context.Context, userID, handle string) (int, error)
}

type Reader interface {
	MarkRead(ctx context.Context, messageID, readerID string) error
}

type Registry interface {
	SetOnline(userID, handle string)
	RemoveByHandle(handle string) (string, bool)
	OnlineUserIDs() []string
}

// Broadcaster delivers outbound events to live connections.
type Broadcaster interface {
	Emit(handle string, ev domain.Outbound) error
	Broadcast(ev domain.Outbound, except string)
}

// LastSeenRecorder mirrors presence changes somewhere durable.
type LastSeenRecorder interface {
	MarkOnline(ctx context.Context, userID string, at time.Time) error
	MarkOffline(ctx context.Context, userID string, at time.Time) error
}

type Deps struct {
	Coordinator Coordinator
	Reader      Reader
	Registry    Registry
	Out         Broadcaster
	LastSeen    LastSeenRecorder
	Log         *zap.Logger
	// EventTimeout bounds the store work of a single inbound event.
	EventTimeout time.Duration
}

// Session is the per-connection state machine. All events of one connection
// go through Dispatch in arrival order.
type Session struct {
	handle   string
	authUser string
	deps     Deps

	mu     sync.Mutex
	state  State
	userID string
}

// NewSession opens an anonymous session for handle. authUser is the subject
// verified at upgrade time, or empty when the socket is unauthenticated.
func NewSession(handle, authUser string, deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = 10 * time.Second
	}
	return &Session{handle: handle, authUser: authUser, deps: deps, state: StateAnonymous}
}

func (s *Session) Handle() string { return s.handle }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Dispatch applies one event.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	if _, ok := ev.(Disconnect); !ok && s.State() == StateDisconnected {
		return domain.ErrSessionClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.EventTimeout)
	defer cancel()

	switch e := ev.(type) {
	case Join:
		return s.join(ctx, e)
	case Send:
		return s.send(ctx, e)
	case MarkRead:
		return s.markRead(ctx, e)
	case Disconnect:
		return s.disconnect(ctx, e)
	}
	return fmt.Errorf("%w: %T", domain.ErrInvalidEvent, ev)
}

func (s *Session) join(ctx context.Context, e Join) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: join without userId", domain.ErrInvalidEvent)
	}
	if s.authUser != "" && e.UserID != s.authUser {
		return domain.ErrIdentity
	}

	s.mu.Lock()
	if s.state == StateIdentified && s.userID != e.UserID {
		s.mu.Unlock()
		return domain.ErrAlreadyBound
	}
	s.state = StateIdentified
	s.userID = e.UserID
	s.mu.Unlock()

	s.deps.Registry.SetOnline(e.UserID, s.handle)
	online := s.deps.Registry.OnlineUserIDs()
	metrics.OnlineUsers.Set(float64(len(online)))
	s.recordOnline(ctx, e.UserID)

	n, err := s.deps.Coordinator.OnJoin(ctx, e.UserID, s.handle)
	if n > 0 {
		s.deps.Log.Debug("backlog flushed", zap.String("user_id", e.UserID), zap.Int("count", n))
	}
	s.deps.Out.Broadcast(domain.OnlineUsers(online), "")
	if err != nil {
		return fmt.Errorf("flush backlog: %w", err)
	}
	return nil
}

func (s *Session) send(ctx context.Context, e Send) error {
	uid := s.UserID()
	if s.State() != StateIdentified {
		return domain.ErrNotIdentified
	}
	sender := e.SenderID
	if sender == "" {
		sender = uid
	}
	if sender != uid {
		return domain.ErrIdentity
	}

	m, err := s.deps.Coordinator.OnSend(ctx, sender, e.ReceiverID, e.Body)
	if err != nil {
		return err
	}
	if err := s.deps.Out.Emit(s.handle, domain.ReceiveMessage(m, true)); err != nil {
		s.deps.Log.Debug("echo failed", zap.String("message_id", m.ID), zap.Error(err))
	}
	return nil
}

func (s *Session) markRead(ctx context.Context, e MarkRead) error {
	if s.State() != StateIdentified {
		return domain.ErrNotIdentified
	}
	if e.MessageID == "" {
		return fmt.Errorf("%w: markAsRead without messageId", domain.ErrInvalidEvent)
	}
	return s.deps.Reader.MarkRead(ctx, e.MessageID, s.UserID())
}

func (s *Session) disconnect(ctx context.Context, e Disconnect) error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	uid, ok := s.deps.Registry.RemoveByHandle(s.handle)
	if !ok {
		return nil
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	online := s.deps.Registry.OnlineUserIDs()
	metrics.OnlineUsers.Set(float64(len(online)))

	s.deps.Out.Broadcast(domain.LastSeen(uid, at), s.handle)
	s.deps.Out.Broadcast(domain.OnlineUsers(online), s.handle)
	if s.deps.LastSeen != nil {
		if err := s.deps.LastSeen.MarkOffline(ctx, uid, at); err != nil {
			s.deps.Log.Warn("record last seen failed", zap.String("user_id", uid), zap.Error(err))
		}
	}
	return nil
}

func (s *Session) recordOnline(ctx context.Context, uid string) {
	if s.deps.LastSeen == nil {
		return
	}
	if err := s.deps.LastSeen.MarkOnline(ctx, uid, time.Now().UTC()); err != nil {
		s.deps.Log.Warn("record presence failed", zap.String("user_id", uid), zap.Error(err))
	}
}
