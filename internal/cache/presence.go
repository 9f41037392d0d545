package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors online/offline transitions into Redis so HTTP
// callers can show a last-seen time. Keys: <prefix>:presence:<userID>.
// Message routing never reads it.
type PresenceStore struct {
	client redis.Cmdable
	prefix string
}

type Presence struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

func NewPresenceStore(r redis.Cmdable, prefix string) *PresenceStore {
	if prefix == "" {
		prefix = "chat"
	}
	return &PresenceStore{client: r, prefix: prefix}
}

func (s *PresenceStore) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *PresenceStore) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	return s.set(ctx, userID, Presence{Status: "online", LastSeen: at})
}

func (s *PresenceStore) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	return s.set(ctx, userID, Presence{Status: "offline", LastSeen: at})
}

// Get returns nil without error when nothing was ever recorded for userID.
func (s *PresenceStore) Get(ctx context.Context, userID string) (*Presence, error) {
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return &p, nil
}

func (s *PresenceStore) set(ctx context.Context, userID string, p Presence) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.presenceKey(userID), b, 0).Err()
}
