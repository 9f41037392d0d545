package domain

import (
	"encoding/json"
	"time"
)

type EventName string

const (
	EventJoin           EventName = "join"
	EventSendMessage    EventName = "sendMessage"
	EventMarkAsRead     EventName = "markAsRead"
	EventReceiveMessage EventName = "receiveMessage"
	EventOnlineUsers    EventName = "onlineUsers"
	EventLastSeen       EventName = "lastSeen"
)

// Frame is the JSON shape of every websocket text frame in both directions.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	UserID string `json:"userId"`
}

type SendPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
	// Message is accepted as an alias of Body for older clients.
	Message string `json:"message,omitempty"`
}

func (p SendPayload) Text() string {
	if p.Body != "" {
		return p.Body
	}
	return p.Message
}

type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

// Outbound is an event pushed to a client.
type Outbound struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

type ReceiveMessagePayload struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`
	Self       bool      `json:"self,omitempty"`
}

type LastSeenPayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

func ReceiveMessage(m *Message, self bool) Outbound {
	return Outbound{
		Event: EventReceiveMessage,
		Data: ReceiveMessagePayload{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Body:       m.Body,
			Timestamp:  m.CreatedAt,
			Status:     m.Status,
			Self:       self,
		},
	}
}

func OnlineUsers(ids []string) Outbound {
	if ids == nil {
		ids = []string{}
	}
	return Outbound{Event: EventOnlineUsers, Data: ids}
}

func LastSeen(userID string, at time.Time) Outbound {
	return Outbound{Event: EventLastSeen, Data: LastSeenPayload{UserID: userID, Timestamp: at}}
}
