package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/repository"
)

const maxHistoryLimit = 200

type QueryService struct {
	store        repository.MessageStore
	historyLimit int64
}

func NewQueryService(store repository.MessageStore, historyLimit int64) *QueryService {
	if historyLimit <= 0 || historyLimit > maxHistoryLimit {
		historyLimit = 50
	}
	return &QueryService{store: store, historyLimit: historyLimit}
}

// Conversations lists the user's counterparts, most recent first.
func (s *QueryService) Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	out, err := s.store.Conversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("conversations for %s: %w", userID, err)
	}
	return out, nil
}

type Unread struct {
	Total         int64            `json:"total"`
	ByCounterpart map[string]int64 `json:"by_counterpart"`
}

func (s *QueryService) Unread(ctx context.Context, userID string) (*Unread, error) {
	by, err := s.store.UnreadByCounterpart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("unread for %s: %w", userID, err)
	}
	u := &Unread{ByCounterpart: by}
	for _, n := range by {
		u.Total += n
	}
	return u, nil
}

// History returns the conversation between two users oldest first. A limit
// of zero or beyond the cap falls back to the configured default.
func (s *QueryService) History(ctx context.Context, userID, peerID string, limit int64, before time.Time) ([]*domain.Message, error) {
	if userID == "" || peerID == "" {
		return nil, fmt.Errorf("%w: both participants are required", domain.ErrInvalidMessage)
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.historyLimit
	}
	return s.store.History(ctx, userID, peerID, limit, before)
}

func (s *QueryService) DeleteConversation(ctx context.Context, userID, peerID string) (int64, error) {
	if userID == "" || peerID == "" {
		return 0, fmt.Errorf("%w: both participants are required", domain.ErrInvalidMessage)
	}
	return s.store.DeleteConversation(ctx, userID, peerID)
}
