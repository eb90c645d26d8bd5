// Package cardcache caches discovered agent capability descriptors in two
// tiers: an in-process ristretto L1 and a NATS JetStream KV L2 shared
// across instances.
package cardcache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 wraps a ristretto cache as the in-process tier.
type L1 struct {
	c *ristretto.Cache[string, []byte]
}

// NewL1 creates a ristretto-backed cache. maxCostBytes is the maximum total
// size of cached values in bytes.
func NewL1(maxCostBytes int64) (*L1, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *L1) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL. Admission is asynchronous; a value
// may not be visible to an immediately following Get.
func (c *L1) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *L1) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *L1) Close() {
	c.c.Close()
}
