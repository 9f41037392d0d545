package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Publisher struct {
	nc     *nats.Conn
	prefix string
}

func NewPublisher(url, prefix string, log *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("roomrent-chat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{nc: nc, prefix: prefix}, nil
}

func (p *Publisher) Publish(_ context.Context, ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject(p.prefix, ev.Type), b)
}

func (p *Publisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

func subject(prefix string, t events.Type) string {
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}
