// Package cache defines the byte-level cache port behind the tiered
// agent-card cache. Adapters report a miss through the bool, never through
// an error; errors are reserved for backend failures.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL'd key/value store over raw bytes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
