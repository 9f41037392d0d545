package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"github.com/fathima-sithara/roomrent-chat/internal/presence"
	"github.com/fathima-sithara/roomrent-chat/internal/repository"
	"github.com/fathima-sithara/roomrent-chat/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newCoordinator(store repository.MessageStore, reg *presence.Registry, em Emitter, pub events.Publisher) *DeliveryCoordinator {
	return NewDeliveryCoordinator(store, reg, em, pub, NewClock(nil), 0, zap.NewNop())
}

func TestDeliveryCoordinator_OnSend(t *testing.T) {
	ctx := context.Background()

	t.Run("should store Sent and push nothing when the receiver is offline", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		em := newRecordingEmitter()
		c := newCoordinator(store, presence.NewRegistry(), em, events.Noop{})

		m, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)
		req.Equal(domain.StatusSent, m.Status)
		req.Nil(m.DeliveredAt)
		req.Empty(em.out)

		stored, err := store.FindByID(ctx, m.ID)
		req.NoError(err)
		req.Equal(domain.StatusSent, stored.Status)
	})

	t.Run("should store Delivered and push once to an online receiver", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		reg := presence.NewRegistry()
		reg.SetOnline("a", "ha")
		em := newRecordingEmitter()
		c := newCoordinator(store, reg, em, events.Noop{})

		m, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)
		req.Equal(domain.StatusDelivered, m.Status)
		req.NotNil(m.DeliveredAt)
		req.NoError(m.CheckInvariant())

		got := em.to("ha")
		req.Len(got, 1)
		req.Equal(m.ID, got[0].ID)
		req.False(got[0].Self)
	})

	t.Run("should keep the message when the push fails", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		reg := presence.NewRegistry()
		reg.SetOnline("a", "ha")
		c := newCoordinator(store, reg, newRecordingEmitter("ha"), events.Noop{})

		m, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)

		_, err = store.FindByID(ctx, m.ID)
		req.NoError(err)
	})

	t.Run("should deliver when the receiver joins while the message is stored", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		em := newRecordingEmitter()
		c := NewDeliveryCoordinator(store, &joiningPresence{handle: "ha"}, em, events.Noop{}, NewClock(nil), 0, zap.NewNop())

		m, err := c.OnSend(ctx, "b", "a", "still free?")
		req.NoError(err)
		req.Equal(domain.StatusDelivered, m.Status)
		req.NoError(m.CheckInvariant())
		req.Len(em.to("ha"), 1)

		stored, err := store.FindByID(ctx, m.ID)
		req.NoError(err)
		req.Equal(domain.StatusDelivered, stored.Status)

		n, err := c.OnJoin(ctx, "a", "ha")
		req.NoError(err)
		req.Zero(n)
		req.Len(em.to("ha"), 1)
	})

	t.Run("should fail the send when persistence fails", func(t *testing.T) {
		req := require.New(t)
		reg := presence.NewRegistry()
		reg.SetOnline("a", "ha")
		em := newRecordingEmitter()
		boom := errors.New("disk full")
		c := newCoordinator(&failingStore{MemoryStore: repository.NewMemoryStore(), err: boom}, reg, em, events.Noop{})

		m, err := c.OnSend(ctx, "b", "a", "hi")
		req.ErrorIs(err, boom)
		req.Nil(m)
		req.Empty(em.out)
		req.True(reg.IsOnline("a"))
	})

	t.Run("should reject invalid messages", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		c := NewDeliveryCoordinator(store, presence.NewRegistry(), newRecordingEmitter(), events.Noop{}, nil, 8, zap.NewNop())

		for _, tc := range []struct{ from, to, body string }{
			{"", "a", "hi"},
			{"b", "", "hi"},
			{"a", "a", "hi"},
			{"b", "a", "   "},
			{"b", "a", strings.Repeat("x", 9)},
		} {
			_, err := c.OnSend(ctx, tc.from, tc.to, tc.body)
			req.ErrorIs(err, domain.ErrInvalidMessage)
		}
		got, _ := store.Conversations(ctx, "a")
		req.Empty(got)
	})

	t.Run("should publish message.sent", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		pub := mocks.NewMockPublisher(ctrl)

		var got events.Event
		pub.EXPECT().
			Publish(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, ev events.Event) { got = ev }).
			Return(nil).
			Times(1)

		c := newCoordinator(repository.NewMemoryStore(), presence.NewRegistry(), newRecordingEmitter(), pub)
		m, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)
		req.Equal(events.MessageSent, got.Type)
		req.Equal(m.ID, got.Key())
	})

	t.Run("should not fail the send when publishing fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		pub := mocks.NewMockPublisher(ctrl)
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(1)

		c := newCoordinator(repository.NewMemoryStore(), presence.NewRegistry(), newRecordingEmitter(), pub)
		_, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)
	})
}

func TestDeliveryCoordinator_OnJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("should deliver a message queued while offline", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		reg := presence.NewRegistry()
		em := newRecordingEmitter()
		c := newCoordinator(store, reg, em, events.Noop{})

		// Given A is offline when B sends
		m, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)
		req.Equal(domain.StatusSent, m.Status)

		// When A joins
		reg.SetOnline("a", "ha")
		n, err := c.OnJoin(ctx, "a", "ha")

		// Then A receives it and it is Delivered
		req.NoError(err)
		req.Equal(1, n)
		got := em.to("ha")
		req.Len(got, 1)
		req.Equal(m.ID, got[0].ID)
		req.Equal(domain.StatusDelivered, got[0].Status)

		stored, _ := store.FindByID(ctx, m.ID)
		req.Equal(domain.StatusDelivered, stored.Status)
		req.NoError(stored.CheckInvariant())
	})

	t.Run("should flush in creation order", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		em := newRecordingEmitter()
		c := newCoordinator(store, presence.NewRegistry(), em, events.Noop{})

		m1, _ := c.OnSend(ctx, "b", "a", "m1")
		m2, _ := c.OnSend(ctx, "c", "a", "m2")

		_, err := c.OnJoin(ctx, "a", "ha")
		req.NoError(err)

		got := em.to("ha")
		req.Len(got, 2)
		req.Equal(m1.ID, got[0].ID)
		req.Equal(m2.ID, got[1].ID)

		pending, _ := store.FindPending(ctx, "a")
		req.Empty(pending)
	})

	t.Run("should deliver each message once across concurrent joins", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		em := newRecordingEmitter()
		c := newCoordinator(store, presence.NewRegistry(), em, events.Noop{})

		const count = 20
		for i := 0; i < count; i++ {
			_, err := c.OnSend(ctx, "b", "a", "msg")
			req.NoError(err)
		}

		var wg sync.WaitGroup
		for _, h := range []string{"h1", "h2"} {
			wg.Add(1)
			go func(h string) {
				defer wg.Done()
				_, _ = c.OnJoin(ctx, "a", h)
			}(h)
		}
		wg.Wait()

		seen := map[string]int{}
		for _, h := range []string{"h1", "h2"} {
			for _, p := range em.to(h) {
				seen[p.ID]++
			}
		}
		req.Len(seen, count)
		for id, n := range seen {
			req.Equal(1, n, "message %s delivered %d times", id, n)
		}
	})

	t.Run("should leave the backlog Sent once the connection is gone", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		em := newRecordingEmitter("ha")
		c := newCoordinator(store, presence.NewRegistry(), em, events.Noop{})
		for _, body := range []string{"m1", "m2", "m3"} {
			_, err := c.OnSend(ctx, "b", "a", body)
			req.NoError(err)
		}

		// When the joining connection dies before the flush
		n, err := c.OnJoin(ctx, "a", "ha")
		req.NoError(err)
		req.Zero(n)

		// Then only the message in flight left Sent
		pending, err := store.FindPending(ctx, "a")
		req.NoError(err)
		req.Len(pending, 2)
		req.Equal("m2", pending[0].Body)
		req.Equal("m3", pending[1].Body)

		// And the next join picks the rest up
		n, err = c.OnJoin(ctx, "a", "hb")
		req.NoError(err)
		req.Equal(2, n)
		req.Len(em.to("hb"), 2)
	})

	t.Run("should do nothing on a second join", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		em := newRecordingEmitter()
		c := newCoordinator(store, presence.NewRegistry(), em, events.Noop{})
		_, _ = c.OnSend(ctx, "b", "a", "hi")

		n, err := c.OnJoin(ctx, "a", "ha")
		req.NoError(err)
		req.Equal(1, n)

		n, err = c.OnJoin(ctx, "a", "ha")
		req.NoError(err)
		req.Equal(0, n)
		req.Len(em.to("ha"), 1)
	})

	t.Run("should not touch messages already read", func(t *testing.T) {
		req := require.New(t)
		store := repository.NewMemoryStore()
		c := newCoordinator(store, presence.NewRegistry(), newRecordingEmitter(), events.Noop{})
		m, _ := c.OnSend(ctx, "b", "a", "hi")

		_, err := store.MarkRead(ctx, m.ID, time.Now())
		req.NoError(err)

		n, err := c.OnJoin(ctx, "a", "ha")
		req.NoError(err)
		req.Equal(0, n)
		stored, _ := store.FindByID(ctx, m.ID)
		req.Equal(domain.StatusRead, stored.Status)
	})

	t.Run("should publish message.delivered per flushed message", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		pub := mocks.NewMockPublisher(ctrl)

		var types []events.Type
		pub.EXPECT().
			Publish(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, ev events.Event) { types = append(types, ev.Type) }).
			Return(nil).
			Times(2)

		c := newCoordinator(repository.NewMemoryStore(), presence.NewRegistry(), newRecordingEmitter(), pub)
		_, err := c.OnSend(ctx, "b", "a", "hi")
		req.NoError(err)

		n, err := c.OnJoin(ctx, "a", "ha")
		req.NoError(err)
		req.Equal(1, n)
		req.Equal([]events.Type{events.MessageSent, events.MessageDelivered}, types)
	})
}

func TestClock(t *testing.T) {
	req := require.New(t)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	c := NewClock(func() time.Time { return fixed })

	a := c.Now()
	b := c.Now()
	req.Equal(fixed.Truncate(time.Millisecond), a)
	req.True(b.After(a))
	req.Equal(time.Millisecond, b.Sub(a))
}
