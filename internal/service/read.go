package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"github.com/fathima-sithara/roomrent-chat/internal/metrics"
	"github.com/fathima-sithara/roomrent-chat/internal/repository"
	"go.uber.org/zap"
)

type ReadHandler struct {
	store repository.MessageStore
	pub   events.Publisher
	log   *zap.Logger
	clock *Clock
}

func NewReadHandler(store repository.MessageStore, pub events.Publisher, clock *Clock, log *zap.Logger) *ReadHandler {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &ReadHandler{store: store, pub: pub, log: log, clock: clock}
}

// MarkRead moves a message to Read on behalf of readerID. Unknown ids and
// messages already Read are no-ops. A non-empty readerID that is not the
// receiver is refused with ErrNotReceiver.
func (h *ReadHandler) MarkRead(ctx context.Context, messageID, readerID string) error {
	m, err := h.store.FindByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		h.log.Info("markAsRead for unknown message", zap.String("message_id", messageID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load message %s: %w", messageID, err)
	}
	if readerID != "" && m.ReceiverID != readerID {
		h.log.Warn("markAsRead from non-receiver",
			zap.String("message_id", messageID),
			zap.String("reader_id", readerID))
		return domain.ErrNotReceiver
	}
	if m.Status == domain.StatusRead {
		return nil
	}

	now := h.clock.Now()
	ok, err := h.store.MarkRead(ctx, messageID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark read %s: %w", messageID, err)
	}
	if !ok {
		return nil
	}
	m.MarkRead(now)
	metrics.Transitions.WithLabelValues(string(domain.StatusRead)).Inc()
	publish(ctx, h.pub, h.log, events.MessageRead, m, now)
	return nil
}
