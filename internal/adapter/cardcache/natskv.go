package cardcache

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// L2 wraps a NATS JetStream KeyValue bucket as the shared remote tier.
type L2 struct {
	kv jetstream.KeyValue
}

// NewL2 creates a NATS KV-backed cache tier.
func NewL2(kv jetstream.KeyValue) *L2 {
	return &L2{kv: kv}
}

// Get retrieves a value from the NATS KV bucket.
func (c *L2) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value in the NATS KV bucket. TTL is managed at bucket level.
func (c *L2) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Delete removes a value from the NATS KV bucket.
func (c *L2) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
