package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a goroutine-safe bytes.Buffer for handler output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAsyncHandler_DeliversRecords(t *testing.T) {
	out := &syncBuffer{}
	inner := slog.NewJSONHandler(out, nil)
	h := NewAsyncHandler(inner, 16, 2)

	log := slog.New(h)
	log.Info("first")
	log.Info("second")
	h.Close()

	got := out.String()
	if !strings.Contains(got, "first") || !strings.Contains(got, "second") {
		t.Errorf("output missing records: %q", got)
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	inner := &blockingHandler{release: block}
	h := NewAsyncHandler(inner, 1, 1)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	// First record occupies the worker, second fills the channel,
	// everything after that is dropped.
	for range 10 {
		_ = h.Handle(context.Background(), rec)
	}
	if h.DroppedCount() == 0 {
		t.Error("expected dropped records, got none")
	}
	close(block)
	h.Close()
}

func TestAsyncHandler_WithAttrsSharesChannel(t *testing.T) {
	out := &syncBuffer{}
	h := NewAsyncHandler(slog.NewJSONHandler(out, nil), 16, 1)

	child := h.WithAttrs([]slog.Attr{slog.String("component", "bridge")})
	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "tagged", 0)
	_ = child.Handle(context.Background(), rec)
	h.Close()

	if !strings.Contains(out.String(), "bridge") {
		t.Errorf("output missing child attrs: %q", out.String())
	}
}

// blockingHandler blocks Handle until release is closed.
type blockingHandler struct {
	release chan struct{}
}

func (b *blockingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (b *blockingHandler) Handle(context.Context, slog.Record) error {
	<-b.release
	return nil
}

func (b *blockingHandler) WithAttrs([]slog.Attr) slog.Handler { return b }
func (b *blockingHandler) WithGroup(string) slog.Handler      { return b }
