package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"github.com/fathima-sithara/roomrent-chat/internal/metrics"
	"github.com/fathima-sithara/roomrent-chat/internal/repository"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 4096

// DeliveryCoordinator decides the initial status of new messages and flushes
// the Sent backlog when a user joins.
type DeliveryCoordinator struct {
	store    repository.MessageStore
	presence Presence
	emitter  Emitter
	pub      events.Publisher
	log      *zap.Logger
	clock    *Clock
	maxBody  int
}

func NewDeliveryCoordinator(store repository.MessageStore, presence Presence, emitter Emitter, pub events.Publisher, clock *Clock, maxBody int, log *zap.Logger) *DeliveryCoordinator {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &DeliveryCoordinator{
		store:    store,
		presence: presence,
		emitter:  emitter,
		pub:      pub,
		log:      log,
		clock:    clock,
		maxBody:  maxBody,
	}
}

// OnSend persists a message, Delivered when the receiver is online and Sent
// otherwise, and pushes it to the receiver's connection. Push failures are
// ignored: the message is stored either way.
func (c *DeliveryCoordinator) OnSend(ctx context.Context, senderID, receiverID, body string) (*domain.Message, error) {
	if err := c.validate(senderID, receiverID, body); err != nil {
		return nil, err
	}

	handle, online := c.presence.Handle(receiverID)
	m := domain.NewMessage(senderID, receiverID, body, online, c.clock.Now())
	if err := c.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesCreated.WithLabelValues(string(m.Status)).Inc()
	publish(ctx, c.pub, c.log, events.MessageSent, m, m.CreatedAt)

	if online {
		if err := c.push(handle, m); err != nil {
			c.log.Debug("push to receiver failed",
				zap.String("message_id", m.ID),
				zap.String("receiver_id", receiverID),
				zap.Error(err))
		}
		return m, nil
	}

	// The receiver may have joined while the message was being stored, after
	// their backlog flush had already read the pending set.
	if late, ok := c.presence.Handle(receiverID); ok {
		if _, err := c.deliver(ctx, m, late); err != nil && !gone(err) {
			c.log.Warn("late delivery failed",
				zap.String("message_id", m.ID),
				zap.String("receiver_id", receiverID),
				zap.Error(err))
		}
	}
	return m, nil
}

// OnJoin delivers every Sent message addressed to userID to handle, oldest
// first, and returns how many reached the connection. Each message is
// claimed with a conditional Sent->Delivered write before it is pushed, so
// concurrent joins never deliver a message twice. The flush stops as soon as
// the connection is gone, leaving the rest Sent for the next join.
func (c *DeliveryCoordinator) OnJoin(ctx context.Context, userID, handle string) (int, error) {
	pending, err := c.store.FindPending(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load pending for %s: %w", userID, err)
	}

	flushed := 0
	defer func() { metrics.BacklogFlushed.Add(float64(flushed)) }()
	for _, m := range pending {
		pushed, err := c.deliver(ctx, m, handle)
		if gone(err) {
			c.log.Debug("connection gone during backlog flush",
				zap.String("user_id", userID),
				zap.String("message_id", m.ID),
				zap.Int("flushed", flushed))
			return flushed, nil
		}
		if err != nil {
			var pe pushError
			if !errors.As(err, &pe) {
				return flushed, err
			}
			c.log.Debug("push backlog failed",
				zap.String("message_id", m.ID),
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		if pushed {
			flushed++
		}
	}
	return flushed, nil
}

// pushError marks a failure to hand a claimed message to the connection.
type pushError struct{ err error }

func (e pushError) Error() string { return "push: " + e.err.Error() }
func (e pushError) Unwrap() error { return e.err }

// deliver claims a Sent message and pushes it to handle. It reports false
// without error when another caller claimed it first.
func (c *DeliveryCoordinator) deliver(ctx context.Context, m *domain.Message, handle string) (bool, error) {
	now := c.clock.Now()
	claimed, err := c.store.MarkDelivered(ctx, m.ID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark delivered %s: %w", m.ID, err)
	}
	if !claimed {
		return false, nil
	}
	m.Deliver(now)
	metrics.Transitions.WithLabelValues(string(domain.StatusDelivered)).Inc()
	publish(ctx, c.pub, c.log, events.MessageDelivered, m, now)

	if err := c.push(handle, m); err != nil {
		return false, pushError{err: err}
	}
	return true, nil
}

func (c *DeliveryCoordinator) push(handle string, m *domain.Message) error {
	err := c.emitter.Emit(handle, domain.ReceiveMessage(m, false))
	if err != nil {
		metrics.EmitFailures.Inc()
	}
	return err
}

// gone reports whether err means the target connection no longer exists.
func gone(err error) bool {
	return errors.Is(err, domain.ErrSessionClosed) || errors.Is(err, domain.ErrUnknownHandle)
}

func (c *DeliveryCoordinator) validate(senderID, receiverID, body string) error {
	switch {
	case senderID == "" || receiverID == "":
		return fmt.Errorf("%w: sender and receiver are required", domain.ErrInvalidMessage)
	case senderID == receiverID:
		return fmt.Errorf("%w: cannot message yourself", domain.ErrInvalidMessage)
	case strings.TrimSpace(body) == "":
		return fmt.Errorf("%w: empty body", domain.ErrInvalidMessage)
	case len(body) > c.maxBody:
		return fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidMessage, c.maxBody)
	}
	return nil
}
