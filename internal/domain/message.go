package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery lifecycle of a message. It only moves forward:
// Sent -> Delivered -> Read.
type Status string

const (
	StatusSent      Status = "Sent"
	StatusDelivered Status = "Delivered"
	StatusRead      Status = "Read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool { return s.rank() > 0 }

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

// Unread reports whether a message in this status still counts as unread
// for its receiver.
func (s Status) Unread() bool { return s == StatusSent || s == StatusDelivered }

// Message is one stored chat message between two users.
type Message struct {
	ID          string     `bson:"_id" json:"id"`
	SenderID    string     `bson:"sender_id" json:"sender_id"`
	ReceiverID  string     `bson:"receiver_id" json:"receiver_id"`
	Body        string     `bson:"body" json:"body"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	Status      Status     `bson:"status" json:"status"`
	DeliveredAt *time.Time `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	ReadAt      *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// NewMessage builds a message ready to be persisted. A receiver that is
// online at send time gets the message created directly as Delivered.
func NewMessage(senderID, receiverID, body string, receiverOnline bool, now time.Time) *Message {
	m := &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  now,
		Status:     StatusSent,
	}
	if receiverOnline {
		m.Deliver(now)
	}
	return m
}

// Deliver moves a Sent message to Delivered. It returns false when the
// message has already left Sent.
func (m *Message) Deliver(now time.Time) bool {
	if m.Status != StatusSent {
		return false
	}
	t := now
	m.Status = StatusDelivered
	m.DeliveredAt = &t
	return true
}

// MarkRead moves the message to Read. A message still in Sent gets its
// delivery stamped at the same instant. Returns false if already Read.
func (m *Message) MarkRead(now time.Time) bool {
	if !m.Status.CanAdvanceTo(StatusRead) {
		return false
	}
	t := now
	if m.DeliveredAt == nil {
		m.DeliveredAt = &t
	}
	m.Status = StatusRead
	m.ReadAt = &t
	return true
}

// CheckInvariant verifies that the timestamps agree with the status.
func (m *Message) CheckInvariant() error {
	if !m.Status.Valid() {
		return fmt.Errorf("message %s: unknown status %q", m.ID, m.Status)
	}
	delivered := m.Status == StatusDelivered || m.Status == StatusRead
	if delivered != (m.DeliveredAt != nil) {
		return fmt.Errorf("message %s: delivered_at does not match status %s", m.ID, m.Status)
	}
	if (m.Status == StatusRead) != (m.ReadAt != nil) {
		return fmt.Errorf("message %s: read_at does not match status %s", m.ID, m.Status)
	}
	return nil
}

// Counterpart returns the other participant of the message as seen by userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
