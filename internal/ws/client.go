package ws

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/metrics"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Conn is the subset of *websocket.Conn a client drives.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendTimeout    time.Duration
	RatePerSecond  int
	SendBuffer     int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 65536
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 2 * time.Second
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Client owns one websocket connection: a read pump feeding the session and
// a write pump draining the send queue.
type Client struct {
	conn    Conn
	handle  string
	send    chan []byte
	done    chan struct{}
	session *Session
	limiter *rate.Limiter
	opts    Options
	log     *zap.Logger
	closed  int32
}

func newClient(conn Conn, session *Session, opts Options, log *zap.Logger) *Client {
	return &Client{
		conn:    conn,
		handle:  session.Handle(),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		session: session,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond),
		opts:    opts,
		log:     log.With(zap.String("handle", session.Handle())),
	}
}

// enqueue queues b for the write pump. timeout <= 0 never waits.
func (c *Client) enqueue(b []byte, timeout time.Duration) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return domain.ErrSessionClosed
	}
	if timeout <= 0 {
		select {
		case c.send <- b:
			return nil
		case <-c.done:
			return domain.ErrSessionClosed
		default:
			return domain.ErrSendTimeout
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return domain.ErrSessionClosed
	case <-timer.C:
		return domain.ErrSendTimeout
	}
}

// readPump decodes frames and dispatches them until the connection fails.
// The session sees a Disconnect once the loop ends.
func (c *Client) readPump(ctx context.Context, hub *Hub) {
	defer func() {
		hub.Unregister(c)
		if err := c.session.Dispatch(ctx, Disconnect{At: time.Now().UTC()}); err != nil {
			c.log.Warn("disconnect handling failed", zap.Error(err))
		}
		c.close()
	}()

	pongWait := c.opts.PingInterval + c.opts.WriteDeadline
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// throttles this connection only; frames are never dropped
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			c.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		if err := c.session.Dispatch(ctx, ev); err != nil {
			c.logEventError(ev, err)
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.done)
		_ = c.conn.Close()
	}
}

func (c *Client) logEventError(ev Event, err error) {
	fields := []zap.Field{
		zap.String("event", eventName(ev)),
		zap.String("user_id", c.session.UserID()),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, domain.ErrNotReceiver),
		errors.Is(err, domain.ErrIdentity),
		errors.Is(err, domain.ErrAlreadyBound):
		c.log.Warn("event refused", fields...)
	case errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidEvent),
		errors.Is(err, domain.ErrNotIdentified):
		c.log.Debug("event rejected", fields...)
	default:
		c.log.Error("event failed", fields...)
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case Join:
		return string(domain.EventJoin)
	case Send:
		return string(domain.EventSendMessage)
	case MarkRead:
		return string(domain.EventMarkAsRead)
	case Disconnect:
		return "disconnect"
	}
	return "unknown"
}

// serve runs the pumps and blocks until the connection is done.
func serve(ctx context.Context, hub *Hub, c *Client) {
	hub.Register(c)
	metrics.Connections.Inc()
	defer metrics.Connections.Dec()

	go c.writePump()
	c.readPump(ctx, hub)
}
