package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"go.uber.org/zap"
)

// Hub tracks live clients by connection handle.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	sendTimeout time.Duration
	log         *zap.Logger
}

func NewHub(sendTimeout time.Duration, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:     make(map[string]*Client),
		sendTimeout: sendTimeout,
		log:         log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.handle] = c
}

// Unregister removes c if it is still the client registered for its handle.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.handle]; ok && cur == c {
		delete(h.clients, c.handle)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit queues ev for one connection, waiting at most the hub's send timeout.
func (h *Hub) Emit(handle string, ev domain.Outbound) error {
	h.mu.RLock()
	c, ok := h.clients[handle]
	h.mu.RUnlock()
	if !ok {
		return domain.ErrUnknownHandle
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.enqueue(b, h.sendTimeout)
}

// Broadcast queues ev for every connection except the given handle. Slow
// consumers are skipped rather than waited on.
func (h *Hub) Broadcast(ev domain.Outbound, except string) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal broadcast", zap.String("event", string(ev.Event)), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for handle, c := range h.clients {
		if handle != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.enqueue(b, 0); err != nil {
			h.log.Debug("broadcast skipped client",
				zap.String("handle", c.handle),
				zap.String("event", string(ev.Event)),
				zap.Error(err))
		}
	}
}

// CloseAll closes every live connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}
