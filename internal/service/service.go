package service

import (
	"context"
	"sync"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"go.uber.org/zap"
)

// Presence is the read side of the presence registry the coordinator needs.
type Presence interface {
	Handle(userID string) (string, bool)
}

// Emitter pushes an outbound event to one live connection. Errors mean the
// connection is gone or not draining; callers treat them as transport
// failures.
type Emitter interface {
	Emit(handle string, ev domain.Outbound) error
}

// Clock hands out strictly increasing millisecond timestamps so messages
// created within the same millisecond still sort in creation order once
// stored with millisecond precision.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}

func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, t events.Type, m *domain.Message, at time.Time) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, events.New(t, m, at)); err != nil {
		log.Warn("publish event failed",
			zap.String("event", string(t)),
			zap.String("message_id", m.ID),
			zap.Error(err))
	}
}
