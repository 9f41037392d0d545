//go:generate go run go.uber.org/mock/mockgen -source=events.go -destination=../../mocks/mock_publisher.go -package=mocks
package events

import (
	"context"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
)

type Type string

const (
	MessageSent      Type = "message.sent"
	MessageDelivered Type = "message.delivered"
	MessageRead      Type = "message.read"
)

// Event is a message lifecycle change published for other services
// (notifications, analytics). Consumers key on Message.ID.
type Event struct {
	Type    Type            `json:"event"`
	Message *domain.Message `json:"message"`
	At      time.Time       `json:"at"`
}

func New(t Type, m *domain.Message, at time.Time) Event {
	return Event{Type: t, Message: m, At: at}
}

func (e Event) Key() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ID
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop drops every event. Used when events.driver is "none".
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
