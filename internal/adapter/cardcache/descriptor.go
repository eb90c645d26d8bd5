package cardcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harmonium-ai/harmonium/internal/domain/agent"
	"github.com/harmonium-ai/harmonium/internal/port/cache"
)

// Descriptors is the typed layer over the byte cache: agent descriptors
// keyed by discovery endpoint. A decode failure is treated as a miss so a
// stale or corrupt entry forces re-discovery instead of an error.
type Descriptors struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewDescriptors wraps c with JSON encoding of agent.Descriptor values.
func NewDescriptors(c cache.Cache, ttl time.Duration) *Descriptors {
	return &Descriptors{cache: c, ttl: ttl}
}

// Lookup returns the cached descriptor for endpoint, or ok=false on miss.
func (d *Descriptors) Lookup(ctx context.Context, endpoint string) (*agent.Descriptor, bool) {
	data, ok, err := d.cache.Get(ctx, endpoint)
	if err != nil || !ok {
		return nil, false
	}
	var desc agent.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		_ = d.cache.Delete(ctx, endpoint)
		return nil, false
	}
	return &desc, true
}

// Store caches desc under its discovery endpoint.
func (d *Descriptors) Store(ctx context.Context, endpoint string, desc *agent.Descriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode descriptor for %s: %w", endpoint, err)
	}
	return d.cache.Set(ctx, endpoint, data, d.ttl)
}

// Evict drops the cached descriptor so the next lookup re-discovers.
func (d *Descriptors) Evict(ctx context.Context, endpoint string) {
	_ = d.cache.Delete(ctx, endpoint)
}
