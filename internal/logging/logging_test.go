package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFromContextFallbacks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fallback := slog.New(slog.NewTextHandler(&buf, nil))

	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}

	scoped := fallback.With("request_id", "abc")
	ctx := WithLogger(context.Background(), scoped)
	if got := FromContext(ctx, fallback); got != scoped {
		t.Fatalf("expected scoped logger from context")
	}

	if got := FromContext(context.Background(), nil); got == nil {
		t.Fatalf("expected no-op logger, got nil")
	}
}

func TestWithOrderTagsContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fallback := slog.New(slog.NewTextHandler(&buf, nil))
	orderID := uuid.MustParse("3f2a9c1b-4d5e-4000-8000-000000000000")

	ctx := WithLogger(context.Background(), fallback.With("request_id", "req-1"))
	ctx = WithOrder(ctx, fallback, orderID)
	FromContext(ctx, fallback).Info("status email sent")

	out := buf.String()
	if !strings.Contains(out, "order_id="+orderID.String()) || !strings.Contains(out, "request_id=req-1") {
		t.Fatalf("expected order and request attributes, got %q", out)
	}

	buf.Reset()
	FromContext(WithOrder(context.Background(), fallback, orderID), nil).Info("from fallback")
	if !strings.Contains(buf.String(), "order_id=") {
		t.Fatalf("expected fallback logger tagged, got %q", buf.String())
	}
}

func TestMultiHandlerRespectsLevels(t *testing.T) {
	t.Parallel()

	var debugBuf, warnBuf bytes.Buffer
	logger := slog.New(MultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)).With("component", "test")

	logger.Info("order created")
	logger.Warn("push dropped")

	if !strings.Contains(debugBuf.String(), "order created") || !strings.Contains(debugBuf.String(), "push dropped") {
		t.Fatalf("expected both records in debug handler, got %q", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "order created") {
		t.Fatalf("expected info record filtered from warn handler, got %q", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), "component=test") {
		t.Fatalf("expected attrs propagated, got %q", warnBuf.String())
	}
}

func TestNewJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(context.Background(), Options{Level: slog.LevelInfo, Format: "json", Output: &buf})
	logger.Info("ready", "port", "5001")

	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), `"port":"5001"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}
