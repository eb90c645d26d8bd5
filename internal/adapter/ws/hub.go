// Package ws implements the WebSocket adapter carrying the canonical event
// stream to UI clients and tool results back from them.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/harmonium-ai/harmonium/internal/domain/run"
)

// Message is the envelope for all WebSocket messages, both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageToolResult is the inbound message type a UI client sends to answer
// a ui_client tool call.
const MessageToolResult = "tool.result"

// ToolResultResolver receives tool results delivered by UI clients.
type ToolResultResolver interface {
	Resolve(ctx context.Context, result run.ToolResult) error
}

// conn wraps a single WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Hub manages all active WebSocket connections, broadcasts events, and
// routes inbound tool results to the resolver.
type Hub struct {
	log      *slog.Logger
	resolver ToolResultResolver

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a WebSocket hub. resolver may be nil, in which case
// inbound tool results are dropped with a warning.
func NewHub(log *slog.Logger, resolver ToolResultResolver) *Hub {
	return &Hub{
		log:      log,
		resolver: resolver,
		conns:    make(map[*conn]struct{}),
	}
}

// SetResolver wires the tool result resolver after construction. The hub
// and the bridge reference each other, so one side has to be set late.
func (h *Hub) SetResolver(r ToolResultResolver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolver = r
}

// HandleWS upgrades the request to a WebSocket connection and registers it.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("websocket connected", "remote", r.RemoteAddr)

	go h.readLoop(ctx, c)
}

// readLoop consumes inbound frames until the connection drops. Tool result
// messages are dispatched to the resolver; anything else is ignored.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		h.dispatch(ctx, data)
	}
}

func (h *Hub) dispatch(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Debug("websocket inbound unmarshal failed", "error", err)
		return
	}
	if msg.Type != MessageToolResult {
		return
	}

	var result run.ToolResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		h.log.Warn("tool result unmarshal failed", "error", err)
		return
	}

	h.mu.RLock()
	resolver := h.resolver
	h.mu.RUnlock()
	if resolver == nil {
		h.log.Warn("tool result dropped: no resolver wired", "call_id", result.CallID)
		return
	}
	if err := resolver.Resolve(ctx, result); err != nil {
		h.log.Warn("tool result rejected", "call_id", result.CallID, "error", err)
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			h.log.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		h.log.Info("websocket disconnected")
	}
}
