package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// NewMongoClient connects and pings, retrying with exponential backoff until
// maxWait has elapsed.
func NewMongoClient(ctx context.Context, uri string, maxWait time.Duration, log *zap.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		if err := c.Ping(cctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait
	notify := func(err error, next time.Duration) {
		log.Warn("mongo connect failed, retrying", zap.Error(err), zap.Duration("next", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return client, nil
}
