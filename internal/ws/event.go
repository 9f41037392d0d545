package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
)

// Event is one input to a Session: Join, Send, MarkRead or Disconnect.
type Event interface {
	isEvent()
}

type Join struct {
	UserID string
}

type Send struct {
	SenderID   string
	ReceiverID string
	Body       string
}

type MarkRead struct {
	MessageID string
}

// Disconnect is raised by the transport, never decoded from the wire.
type Disconnect struct {
	At time.Time
}

func (Join) isEvent()       {}
func (Send) isEvent()       {}
func (MarkRead) isEvent()   {}
func (Disconnect) isEvent() {}

// DecodeEvent parses one inbound text frame.
func DecodeEvent(data []byte) (Event, error) {
	var f domain.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("%w: %s without data", domain.ErrInvalidEvent, f.Event)
	}
	switch f.Event {
	case domain.EventJoin:
		var p domain.JoinPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: join: %v", domain.ErrInvalidEvent, err)
		}
		return Join{UserID: p.UserID}, nil
	case domain.EventSendMessage:
		var p domain.SendPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: sendMessage: %v", domain.ErrInvalidEvent, err)
		}
		return Send{SenderID: p.SenderID, ReceiverID: p.ReceiverID, Body: p.Text()}, nil
	case domain.EventMarkAsRead:
		var p domain.MarkReadPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: markAsRead: %v", domain.ErrInvalidEvent, err)
		}
		return MarkRead{MessageID: p.MessageID}, nil
	}
	return nil, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidEvent, f.Event)
}
