// Package nats manages the NATS JetStream connection and the KV buckets
// backing the shared discovery cache tier.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Conn wraps the NATS connection and its JetStream context.
type Conn struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

// Connect establishes a connection to NATS and initializes JetStream.
func Connect(_ context.Context, url string, log *slog.Logger) (*Conn, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	log.Info("nats connected", "url", url)
	return &Conn{nc: nc, js: js, log: log}, nil
}

// KeyValue returns the named KV bucket, creating it with the given TTL if
// it does not exist. Entries age out at the bucket level.
func (c *Conn) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("kv lookup %s: %w", bucket, err)
	}

	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("kv create %s: %w", bucket, err)
	}
	c.log.Info("nats kv bucket created", "bucket", bucket, "ttl", ttl)
	return kv, nil
}

// Close shuts down the NATS connection.
func (c *Conn) Close() {
	c.nc.Close()
}
