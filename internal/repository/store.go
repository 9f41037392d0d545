package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
)

// ErrNotFound is returned when a message id does not resolve.
var ErrNotFound = domain.ErrNotFound

// MessageStore is the single source of truth for message status. Every
// status transition is conditional on the current stored status, so racing
// callers see at most one successful transition.
type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// FindPending returns messages addressed to receiverID still in Sent,
	// oldest first.
	FindPending(ctx context.Context, receiverID string) ([]*domain.Message, error)
	// MarkDelivered moves a Sent message to Delivered and reports whether
	// this call performed the transition.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkRead moves a message that is not yet Read to Read and reports
	// whether this call performed the transition.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	// History returns up to limit messages exchanged between two users
	// created before the given instant (zero means now), oldest first.
	History(ctx context.Context, userA, userB string, limit int64, before time.Time) ([]*domain.Message, error)
	Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	UnreadByCounterpart(ctx context.Context, userID string) (map[string]int64, error)
	DeleteConversation(ctx context.Context, userA, userB string) (int64, error)
}
