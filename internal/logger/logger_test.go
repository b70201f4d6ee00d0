package logger

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Development(t *testing.T) {
	log, err := New(true)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected non-nil logger")
	}

	// Should not panic
	log.Info("test message")
}

func TestNew_Production(t *testing.T) {
	log, err := New(false)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestMust(t *testing.T) {
	log := Must(true)
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInit(t *testing.T) {
	log, err := Init("test-service", "debug")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level to be enabled")
	}
	if zap.L() != log {
		t.Error("expected Init to replace the global logger")
	}
}

func TestInit_BadLevel(t *testing.T) {
	if _, err := Init("svc", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("BINANCE:BTCUSDT", ts)

	if !strings.HasPrefix(tid, "BINANCE:BTCUSDT-") {
		t.Errorf("expected trace id to start with the key, got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestTraceField(t *testing.T) {
	if f := TraceField(context.Background()); f.Type != zapcore.SkipType {
		t.Errorf("expected skip field without trace id, got %v", f.Type)
	}

	f := TraceField(WithTraceID(context.Background(), "abc"))
	if f.Key != "trace_id" || f.String != "abc" {
		t.Errorf("unexpected field %+v", f)
	}
}
