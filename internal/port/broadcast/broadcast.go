// Package broadcast defines the port for pushing run stream events to
// connected UI clients.
package broadcast

import (
	"context"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
)

// Broadcaster delivers stream events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends one run event to every connected client.
	BroadcastEvent(ctx context.Context, ev event.Event)
}
