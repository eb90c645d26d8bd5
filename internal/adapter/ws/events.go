package ws

import (
	"context"
	"encoding/json"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
)

// BroadcastEvent implements broadcast.Broadcaster: the event is wrapped in
// the standard envelope with its canonical type string, so UI clients can
// switch on msg.type without unwrapping the payload first.
func (h *Hub) BroadcastEvent(ctx context.Context, ev event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", "type", ev.Type, "run_id", ev.RunID, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    string(ev.Type),
		Payload: data,
	})
}
