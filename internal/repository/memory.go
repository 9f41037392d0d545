package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
)

// MemoryStore keeps messages in process memory. Used when no MongoDB is
// configured and by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Message
	order []string // insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*domain.Message)}
}

func (s *MemoryStore) Create(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return domain.ErrInvalidMessage
	}
	s.byID[m.ID] = clone(m)
	s.order = append(s.order, m.ID)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) FindPending(_ context.Context, receiverID string) ([]*domain.Message, error) {
	out := s.collect(func(m *domain.Message) bool {
		return m.ReceiverID == receiverID && m.Status == domain.StatusSent
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	return m.Deliver(at), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	return m.MarkRead(at), nil
}

func (s *MemoryStore) History(_ context.Context, userA, userB string, limit int64, before time.Time) ([]*domain.Message, error) {
	out := s.collect(func(m *domain.Message) bool {
		if !m.Involves(userA) || m.Counterpart(userA) != userB {
			return false
		}
		return before.IsZero() || m.CreatedAt.Before(before)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (s *MemoryStore) Conversations(_ context.Context, userID string) ([]domain.ConversationSummary, error) {
	msgs := s.collect(func(m *domain.Message) bool { return m.Involves(userID) })
	byPeer := map[string]*domain.ConversationSummary{}
	for _, m := range msgs {
		peer := m.Counterpart(userID)
		sum, ok := byPeer[peer]
		if !ok {
			sum = &domain.ConversationSummary{CounterpartID: peer}
			byPeer[peer] = sum
		}
		if !ok || !m.CreatedAt.Before(sum.LastAt) {
			sum.LastMessageID = m.ID
			sum.LastSenderID = m.SenderID
			sum.LastBody = m.Body
			sum.LastAt = m.CreatedAt
		}
		if m.ReceiverID == userID && m.Status.Unread() {
			sum.Unread++
		}
	}
	out := make([]domain.ConversationSummary, 0, len(byPeer))
	for _, sum := range byPeer {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAt.After(out[j].LastAt) })
	return out, nil
}

func (s *MemoryStore) UnreadByCounterpart(_ context.Context, userID string) (map[string]int64, error) {
	msgs := s.collect(func(m *domain.Message) bool {
		return m.ReceiverID == userID && m.Status.Unread()
	})
	out := map[string]int64{}
	for _, m := range msgs {
		out[m.SenderID]++
	}
	return out, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, userA, userB string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.order[:0]
	for _, id := range s.order {
		m := s.byID[id]
		if m.Involves(userA) && m.Counterpart(userA) == userB {
			delete(s.byID, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}

// collect returns copies of matching messages in insertion order.
func (s *MemoryStore) collect(match func(*domain.Message) bool) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Message{}
	for _, id := range s.order {
		if m := s.byID[id]; match(m) {
			out = append(out, clone(m))
		}
	}
	return out
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}
